package dispatch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/nmslite/inventory-agent/internal/resultcode"
	"github.com/nmslite/inventory-agent/internal/task"
)

// Request is one task as handed over by the dispatcher.
type Request struct {
	RequestID         string            `json:"request_id,omitempty" validate:"omitempty,max=128"`
	Unit              string            `json:"unit" validate:"required"`
	TaskID            int64             `json:"task_id" validate:"gte=0"`
	CleID             int64             `json:"cle_id" validate:"gte=0"`
	ElementID         int64             `json:"element_id" validate:"gte=0"`
	DatabaseTimestamp int64             `json:"database_timestamp" validate:"gte=0"`
	LocalTimestamp    int64             `json:"local_timestamp" validate:"gte=0"`
	Attributes        map[string]int64  `json:"attributes,omitempty" validate:"omitempty,dive,keys,required,endkeys,gte=0"`
	Parameters        map[string]string `json:"parameters,omitempty"`
	Target            task.Target       `json:"target"`
}

// Task converts the request into the runner's task, normalizing parameter
// keys.
func (r *Request) Task() *task.Task {
	return &task.Task{
		TaskID:            r.TaskID,
		CleID:             r.CleID,
		ElementID:         r.ElementID,
		DatabaseTimestamp: r.DatabaseTimestamp,
		LocalTimestamp:    r.LocalTimestamp,
		Attributes:        r.Attributes,
		Parameters:        task.NormalizeParameters(r.Parameters),
		Target:            r.Target,
	}
}

// Response reports the outcome of one Request.
type Response struct {
	RequestID  string          `json:"request_id"`
	TaskID     int64           `json:"task_id"`
	Unit       string          `json:"unit"`
	ResultCode resultcode.Code `json:"result_code"`
	Payload    string          `json:"payload"`
	Rows       int             `json:"rows"`
	ElapsedMS  int64           `json:"elapsed_ms"`
	Error      string          `json:"error,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report fields by their JSON names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidationError represents a field-level validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors holds multiple validation errors
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// Error implements the error interface for ValidationErrors
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return "validation failed"
	}
	messages := make([]string, len(v.Errors))
	for i, e := range v.Errors {
		messages[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// Validate checks the request and returns *ValidationErrors describing
// every failing field.
func (r *Request) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	validationErrs := &ValidationErrors{}
	for _, e := range fieldErrs {
		validationErrs.Errors = append(validationErrs.Errors, ValidationError{
			Field:   fieldPath(e),
			Message: formatValidationMessage(e),
		})
	}
	return validationErrs
}

// fieldPath drops the leading struct name, so "Request.target.port" becomes
// "target.port".
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

// formatValidationMessage creates human-readable error messages
func formatValidationMessage(e validator.FieldError) string {
	field := fieldPath(e)
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, e.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, e.Tag())
	}
}

// DecodeRequests parses either one JSON request object or a JSON array of
// them. batch reports which form was found.
func DecodeRequests(data []byte) (reqs []Request, batch bool, err error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, false, errors.New("empty request body")
	}
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &reqs); err != nil {
			return nil, true, fmt.Errorf("failed to parse request array: %w", err)
		}
		return reqs, true, nil
	}
	var req Request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return nil, false, fmt.Errorf("failed to parse request: %w", err)
	}
	return []Request{req}, false, nil
}
