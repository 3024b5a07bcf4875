package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/firewatch/hotspot-ingest/internal/domain"
)

func TestIsFatalRunError(t *testing.T) {
	exhausted := &domain.FetchError{Kind: domain.FetchRateLimited, Status: 429, Attempts: 5}
	assert.False(t, isFatalRunError(exhausted), "exhausted fetches are reported, not fatal")
	assert.False(t, isFatalRunError(fmt.Errorf("fetch detections: %w", exhausted)))
	assert.False(t, isFatalRunError(&domain.FetchError{Kind: domain.FetchPermanent, Status: 404, Attempts: 1}))

	assert.True(t, isFatalRunError(errors.New("connect to postgres: connection refused")))
	assert.True(t, isFatalRunError(context.Canceled), "an interrupted cycle left work undone")
}
