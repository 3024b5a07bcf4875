package domain

import "fmt"

// FetchKind classifies a fetch failure for retry policy decisions.
type FetchKind string

const (
	FetchTransient   FetchKind = "transient"    // network-level failure, retried with a fixed delay
	FetchRateLimited FetchKind = "rate_limited" // HTTP 429, retried on a linear backoff ramp
	FetchPermanent   FetchKind = "permanent"    // any other non-success status, never retried
)

// FetchError is returned by the fetcher when a request cannot be satisfied,
// either immediately (permanent) or after the attempt budget is exhausted.
type FetchError struct {
	Kind     FetchKind
	Status   int // last HTTP status, 0 when the request never completed
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch failed (%s, status %d, %d attempts): %v", e.Kind, e.Status, e.Attempts, e.Err)
	}
	return fmt.Sprintf("fetch failed (%s, %d attempts): %v", e.Kind, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NormalizationReason identifies why a raw row could not be coerced into a
// canonical record.
type NormalizationReason string

const (
	MissingField        NormalizationReason = "missing_field"
	UnparsableTimestamp NormalizationReason = "unparsable_timestamp"
	TypeMismatch        NormalizationReason = "type_mismatch"
)

// NormalizationError is row-scoped: the offending row is counted and skipped,
// never aborting the batch.
type NormalizationError struct {
	Reason NormalizationReason
	Field  string
	Err    error
}

func (e *NormalizationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("normalize %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("normalize %s: %s", e.Field, e.Reason)
}

func (e *NormalizationError) Unwrap() error { return e.Err }
