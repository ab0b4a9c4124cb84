package xlsxwriter

import (
	"errors"
	"fmt"
)

// ErrSheetNotFound indicates the template has no sheet with the mapped name.
var ErrSheetNotFound = errors.New("sheet not found")

// ErrInPlaceSave indicates an attempt to save over the template without
// AllowInPlace.
var ErrInPlaceSave = errors.New("refusing to overwrite the template")

// StageError represents a failure that stopped the whole write operation.
type StageError struct {
	Stage string // "workbook_load", "workbook_save"
	Path  string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed for %q: %v", e.Stage, e.Path, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError creates a new StageError.
func NewStageError(stage, path string, err error) *StageError {
	return &StageError{
		Stage: stage,
		Path:  path,
		Err:   err,
	}
}
