package domain

import "fmt"

// BatchError reports per-entry failures from a batched index write. The
// failing entries never abort the rest of the batch; callers inspect
// FailedUserIDs to schedule repair for just those users.
type BatchError struct {
	// Op is the batch operation that partially failed ("add" or "remove").
	Op string

	// FailedUserIDs are the users whose entry could not be written.
	FailedUserIDs []string

	// Attempted is the total number of entries in the batch.
	Attempted int

	// First is the first per-entry error observed, kept for logging.
	First error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %s: %d of %d entries failed: %v",
		e.Op, len(e.FailedUserIDs), e.Attempted, e.First)
}

func (e *BatchError) Unwrap() error {
	return e.First
}
