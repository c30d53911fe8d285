package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrAllocationContention = errors.New("serial allocation retry budget exceeded")
	ErrAllocationExhausted  = errors.New("serial sequence exhausted for scope")
	ErrTemplateAssetMissing = errors.New("template background asset missing")
	ErrValidation           = errors.New("invalid template definition")
	ErrCertificateNotFound  = errors.New("certificate not found")
)

// MissingBindingError means a dynamic text element had no bound value for
// its placeholder and was not marked optional.
type MissingBindingError struct {
	ElementID string
	Key       string
}

func (e *MissingBindingError) Error() string {
	return fmt.Sprintf("element %s: no bound value for %q", e.ElementID, e.Key)
}

// RenderError wraps any per-element failure, including missing bindings.
type RenderError struct {
	ElementID string
	Err       error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render element %s: %v", e.ElementID, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// PersistError is a warning, never surfaced to getOrGenerate callers.
type PersistError struct {
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist artifact %s: %v", e.Path, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// SkippedArtifact records one certificate left out of a batch merge.
type SkippedArtifact struct {
	CertificateID uuid.UUID `json:"certificate_id"`
	SerialNumber  string    `json:"serial_number,omitempty"`
	Reason        string    `json:"reason"`
}
