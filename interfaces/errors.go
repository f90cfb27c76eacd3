package interfaces

import (
	"errors"
	"fmt"
)

// Precondition errors. A pipeline reporting one of these never started and
// issued no network or ledger calls.
var (
	// ErrNoAccount is returned when a pipeline is invoked without an
	// authenticated account.
	ErrNoAccount = errors.New("no authenticated account")

	// ErrNoSourceFile is returned when the encrypt pipeline is invoked
	// without a selected source file.
	ErrNoSourceFile = errors.New("no source file selected")

	// ErrPipelineBusy is returned when a pipeline is invoked while another
	// pipeline is active on the same session.
	ErrPipelineBusy = errors.New("another pipeline is already active")
)

// Fatal upstream errors. These abort the current pipeline and leave session
// state at whatever partial progress was recorded.
var (
	// ErrThresholdNotReached is returned when fewer key servers than the
	// configured threshold produced a valid key share.
	ErrThresholdNotReached = errors.New("insufficient key shares to reach threshold")

	// ErrSignatureRejected is returned when the wallet declined to sign the
	// credential challenge.
	ErrSignatureRejected = errors.New("signature request rejected")

	// ErrCredentialExpired is returned when a session credential is used
	// past its time-to-live.
	ErrCredentialExpired = errors.New("session credential expired")

	// ErrCredentialNotSigned is returned when a credential is used before
	// the challenge signature has been bound to it.
	ErrCredentialNotSigned = errors.New("session credential has no bound signature")

	// ErrBlobNotFound is returned when the blob store has no content for
	// the requested identifier.
	ErrBlobNotFound = errors.New("blob not found")

	// ErrEnvelopeMismatch is returned when the envelope ID parsed from
	// stored ciphertext does not match the ID derived before encryption.
	ErrEnvelopeMismatch = errors.New("stored envelope ID does not match derived ID")
)

// UpstreamError wraps a fatal failure of an external collaborator. The Op
// names the failed operation for reporting; Unwrap exposes the cause so
// callers can match the sentinel errors above with errors.Is.
type UpstreamError struct {
	Op  string
	Err error
}

// Error returns the operation name and the underlying error.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// NewUpstreamError wraps err as a fatal upstream failure of op.
func NewUpstreamError(op string, err error) *UpstreamError {
	return &UpstreamError{Op: op, Err: err}
}

// IsUpstream reports whether err is (or wraps) an UpstreamError.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
