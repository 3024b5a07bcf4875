package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RawRow is one uninterpreted row of a tabular detection batch, keyed by the
// source's own column names.
type RawRow map[string]string

// DetectionSchema maps one feed generation's column names onto the canonical
// detection shape. Aliases are tried in order, so a single schema can absorb
// minor renames between feed versions.
type DetectionSchema struct {
	Name       string
	Latitude   []string
	Longitude  []string
	Date       []string // acquisition date, "2006-01-02"
	Time       []string // acquisition time of day, HHMM with optional leading-zero loss
	Intensity  []string
	Confidence []string
	Instrument []string

	// DefaultInstrument is used when no instrument column is present.
	DefaultInstrument string
}

// FIRMSModisSchema covers the MODIS active-fire CSV exports (both the 24-hour
// and 7-day horizons, which share a schema).
var FIRMSModisSchema = DetectionSchema{
	Name:              "firms-modis",
	Latitude:          []string{"latitude", "lat"},
	Longitude:         []string{"longitude", "lon"},
	Date:              []string{"acq_date"},
	Time:              []string{"acq_time"},
	Intensity:         []string{"frp", "brightness"},
	Confidence:        []string{"confidence"},
	Instrument:        []string{"instrument", "satellite"},
	DefaultInstrument: "MODIS",
}

// FIRMSViirsSchema covers the VIIRS exports, which rename the brightness
// column and report confidence as a letter class.
var FIRMSViirsSchema = DetectionSchema{
	Name:              "firms-viirs",
	Latitude:          []string{"latitude"},
	Longitude:         []string{"longitude"},
	Date:              []string{"acq_date"},
	Time:              []string{"acq_time"},
	Intensity:         []string{"frp", "bright_ti4"},
	Confidence:        []string{"confidence"},
	Instrument:        []string{"instrument", "satellite"},
	DefaultInstrument: "VIIRS",
}

var detectionSchemas = map[string]DetectionSchema{
	FIRMSModisSchema.Name: FIRMSModisSchema,
	FIRMSViirsSchema.Name: FIRMSViirsSchema,
}

// DetectionSchemaFor looks up a registered feed schema by name.
func DetectionSchemaFor(name string) (DetectionSchema, error) {
	s, ok := detectionSchemas[name]
	if !ok {
		return DetectionSchema{}, fmt.Errorf("unknown detection schema %q", name)
	}
	return s, nil
}

// NormalizeDetection coerces one raw row into a Detection. Failures are
// row-scoped NormalizationErrors; callers count and skip them.
// The Region field is left empty: assignment happens on geofence acceptance.
func NormalizeDetection(row RawRow, schema DetectionSchema, source string) (Detection, error) {
	lat, err := requireFloat(row, schema.Latitude)
	if err != nil {
		return Detection{}, err
	}
	lon, err := requireFloat(row, schema.Longitude)
	if err != nil {
		return Detection{}, err
	}
	intensity, err := requireFloat(row, schema.Intensity)
	if err != nil {
		return Detection{}, err
	}

	date, ok := lookup(row, schema.Date)
	if !ok {
		return Detection{}, &NormalizationError{Reason: MissingField, Field: schema.Date[0]}
	}
	tod, ok := lookup(row, schema.Time)
	if !ok {
		return Detection{}, &NormalizationError{Reason: MissingField, Field: schema.Time[0]}
	}
	observedAt, err := ComposeTimestamp(date, tod)
	if err != nil {
		return Detection{}, &NormalizationError{Reason: UnparsableTimestamp, Field: schema.Date[0], Err: err}
	}

	confidence, _ := lookup(row, schema.Confidence)
	instrument, ok := lookup(row, schema.Instrument)
	if !ok {
		instrument = schema.DefaultInstrument
	}

	return Detection{
		Latitude:   lat,
		Longitude:  lon,
		ObservedAt: observedAt,
		Intensity:  intensity,
		Confidence: confidence,
		Instrument: instrument,
		Source:     source,
	}, nil
}

// ComposeTimestamp combines a "2006-01-02" date and an HHMM time of day into
// one UTC instant. Sources drop leading zeros ("930" means 09:30), so values
// shorter than four digits are zero-padded first.
func ComposeTimestamp(date, hhmm string) (time.Time, error) {
	day, err := time.Parse("2006-01-02", strings.TrimSpace(date))
	if err != nil {
		return time.Time{}, fmt.Errorf("acquisition date %q: %w", date, err)
	}

	hhmm = strings.TrimSpace(hhmm)
	if len(hhmm) == 0 || len(hhmm) > 4 {
		return time.Time{}, fmt.Errorf("acquisition time %q: want HHMM", hhmm)
	}
	for len(hhmm) < 4 {
		hhmm = "0" + hhmm
	}

	hour, errH := strconv.Atoi(hhmm[:2])
	mins, errM := strconv.Atoi(hhmm[2:])
	if errH != nil || errM != nil || hour > 23 || mins > 59 {
		return time.Time{}, fmt.Errorf("acquisition time %q: want HHMM", hhmm)
	}

	return time.Date(day.Year(), day.Month(), day.Day(), hour, mins, 0, 0, time.UTC), nil
}

// RawForecastDay is one daily forecast object after the feed client has
// flattened the provider's nested response, before validation.
type RawForecastDay struct {
	Date          string
	TempMax       float64
	TempMin       float64
	HumidityMax   float64
	HumidityMin   float64
	WindMax       float64
	PrecipProbMax float64
}

// forecastDateLayouts covers the date encodings observed in provider
// responses: bare dates and local-midnight timestamps.
var forecastDateLayouts = []string{"2006-01-02", "2006-01-02T15:04:05", time.RFC3339}

// NormalizeForecast validates a raw forecast day and stamps the download time
// from the package clock.
func NormalizeForecast(raw RawForecastDay, regionCode, regionName string) (Forecast, error) {
	if regionCode == "" {
		return Forecast{}, &NormalizationError{Reason: MissingField, Field: "region_code"}
	}

	var date time.Time
	var err error
	for _, layout := range forecastDateLayouts {
		if date, err = time.Parse(layout, strings.TrimSpace(raw.Date)); err == nil {
			break
		}
	}
	if err != nil {
		return Forecast{}, &NormalizationError{Reason: UnparsableTimestamp, Field: "fecha", Err: err}
	}

	return Forecast{
		RegionCode:    regionCode,
		RegionName:    regionName,
		ForecastDate:  time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC),
		TempMax:       raw.TempMax,
		TempMin:       raw.TempMin,
		HumidityMax:   raw.HumidityMax,
		HumidityMin:   raw.HumidityMin,
		WindMax:       raw.WindMax,
		PrecipProbMax: raw.PrecipProbMax,
		DownloadedAt:  clock.Now().UTC(),
	}, nil
}

func lookup(row RawRow, aliases []string) (string, bool) {
	for _, name := range aliases {
		if v, ok := row[name]; ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

func requireFloat(row RawRow, aliases []string) (float64, error) {
	s, ok := lookup(row, aliases)
	if !ok {
		return 0, &NormalizationError{Reason: MissingField, Field: aliases[0]}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &NormalizationError{Reason: TypeMismatch, Field: aliases[0], Err: err}
	}
	return v, nil
}
