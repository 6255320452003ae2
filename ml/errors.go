package ml

import (
	"errors"
	"fmt"
)

var (
	ErrEmptySchema     = errors.New("feature schema is empty")
	ErrSchemaMismatch  = errors.New("classifier and feature schema do not match")
	ErrModelNotTrained = errors.New("model not trained")
	ErrUndefinedAUC    = errors.New("roc auc is undefined when only one class is present")
)

// InputError is a per-request rejection; it never aborts the process.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// ErrEmptyURL is returned by Predict for an empty or blank url.
var ErrEmptyURL = &InputError{Field: "url", Reason: "required"}

// ArtifactMissingError means the classifier or schema could not be loaded.
// Serving must not start when this is returned.
type ArtifactMissingError struct {
	Path string
	Err  error
}

func (e *ArtifactMissingError) Error() string {
	return fmt.Sprintf("model artifact %s unavailable: %v", e.Path, e.Err)
}

func (e *ArtifactMissingError) Unwrap() error { return e.Err }

// DatasetError aborts a training run before any artifact is written.
type DatasetError struct {
	Reason string
	Err    error
}

func (e *DatasetError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dataset: %s: %v", e.Reason, e.Err)
	}
	return "dataset: " + e.Reason
}

func (e *DatasetError) Unwrap() error { return e.Err }
