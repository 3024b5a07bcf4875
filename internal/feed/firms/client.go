// Package firms fetches FIRMS-style active fire CSV batches.
package firms

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firewatch/hotspot-ingest/internal/domain"
	"github.com/firewatch/hotspot-ingest/internal/feed"
)

// Client downloads one detection feed variant (24-hour or 7-day horizon) and
// parses its tabular batch into raw rows keyed by the header columns.
type Client struct {
	fetcher *feed.Fetcher
	url     string
	logger  *slog.Logger
}

// NewClient creates a detection feed client for the given CSV endpoint.
func NewClient(fetcher *feed.Fetcher, url string, logger *slog.Logger) *Client {
	return &Client{fetcher: fetcher, url: url, logger: logger}
}

// FetchDetections downloads and parses the batch. Rows with a column count
// differing from the header are skipped and counted, consistent with the
// row-scoped error policy of normalization.
func (c *Client) FetchDetections(ctx context.Context) ([]domain.RawRow, error) {
	body, err := c.fetcher.Get(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch detections: %w", err)
	}

	reader := csv.NewReader(strings.NewReader(string(body)))
	reader.FieldsPerRecord = -1 // ragged rows are skipped below, not fatal

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse detection csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := records[0]
	for i, col := range header {
		header[i] = strings.TrimSpace(strings.ToLower(col))
	}

	rows := make([]domain.RawRow, 0, len(records)-1)
	ragged := 0
	for _, rec := range records[1:] {
		if len(rec) != len(header) {
			ragged++
			continue
		}
		row := make(domain.RawRow, len(header))
		for i, col := range header {
			row[col] = rec[i]
		}
		rows = append(rows, row)
	}

	if ragged > 0 {
		c.logger.Warn("skipped ragged csv rows", "url", c.url, "count", ragged)
	}
	return rows, nil
}
