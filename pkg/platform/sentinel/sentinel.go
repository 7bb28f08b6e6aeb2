package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Registry stores return these
// (optionally wrapped) so transaction handlers can translate them into coded
// domain errors.
//
//   - ErrNotFound: no record with the requested ID in the collection
//   - ErrConflict: a record with the same ID already exists
//   - ErrUnavailable: the backing store or broker could not be reached
//   - ErrCommitUnknown: a commit failed after it was sent, so it may have applied
//
// Precondition failures (untrusted requester, insufficient funds) are domain
// errors, not sentinels.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")

	ErrCommitUnknown = errors.New("commit outcome unknown")
)
