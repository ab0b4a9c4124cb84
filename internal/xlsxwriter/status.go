package xlsxwriter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// =============================================================================
// STATUS VALUES
// =============================================================================

// Status is the aggregate outcome of a write operation.
type Status string

const (
	StatusSuccess          Status = "success"
	StatusPartialSuccess   Status = "partial_success"
	StatusValidationFailed Status = "validation_failed"
	StatusError            Status = "error"
)

// Stage names where a write operation stopped.
const (
	StageWorkbookLoad = "workbook_load"
	StageValidation   = "validation"
	StageWriting      = "writing"
	StageWorkbookSave = "workbook_save"
	StageCompleted    = "completed"
)

// FieldState is the outcome for one mapped field.
type FieldState int

const (
	FieldSuccess FieldState = iota
	FieldMissing
	FieldError
)

// FieldStatus is the per-field status. It encodes as "success", "missing"
// or "error: <reason>".
type FieldStatus struct {
	State  FieldState
	Reason string
}

// Succeeded reports whether the field was written.
func (s FieldStatus) Succeeded() bool {
	return s.State == FieldSuccess
}

// String renders the status in its wire form.
func (s FieldStatus) String() string {
	switch s.State {
	case FieldSuccess:
		return "success"
	case FieldMissing:
		return "missing"
	default:
		return "error: " + s.Reason
	}
}

// MarshalJSON encodes the wire form.
func (s FieldStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes the wire form.
func (s *FieldStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw == "success":
		*s = FieldStatus{State: FieldSuccess}
	case raw == "missing":
		*s = FieldStatus{State: FieldMissing}
	case strings.HasPrefix(raw, "error:"):
		*s = FieldStatus{State: FieldError, Reason: strings.TrimSpace(strings.TrimPrefix(raw, "error:"))}
	default:
		return fmt.Errorf("unknown field status %q", raw)
	}
	return nil
}

// =============================================================================
// WRITE STATUS
// =============================================================================

// FieldResult pairs a field with its status.
type FieldResult struct {
	Field  string
	Cell   string
	Status FieldStatus
}

// WriteStatus holds exactly one entry per mapped field, in mapping order.
// It encodes as a JSON object keyed by field.
type WriteStatus []FieldResult

// Get returns the status of field.
func (ws WriteStatus) Get(field string) (FieldStatus, bool) {
	for _, r := range ws {
		if r.Field == field {
			return r.Status, true
		}
	}
	return FieldStatus{}, false
}

// Count returns how many fields are in state.
func (ws WriteStatus) Count(state FieldState) int {
	n := 0
	for _, r := range ws {
		if r.Status.State == state {
			n++
		}
	}
	return n
}

// MarshalJSON writes the statuses as an ordered object.
func (ws WriteStatus) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, r := range ws {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(r.Field)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.Status)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// aggregate derives the overall status from per-field outcomes. Any field
// that is not a success makes the write partial, including the case where
// nothing was written; SuccessfulWrites tells those apart.
func aggregate(ws WriteStatus) Status {
	if ws.Count(FieldSuccess) == len(ws) {
		return StatusSuccess
	}
	return StatusPartialSuccess
}
