package reconciliation

import "errors"

// Error taxonomy surfaced to callers. Validation means fix the input;
// conflict means refetch and retry; not-ready means the OCR or fraud
// collaborator has not reported yet.
var (
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("not found")
	ErrNotReady   = errors.New("receipt still processing")
)
