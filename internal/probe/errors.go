package probe

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	ErrValidation     = errors.New("probe: invalid configuration")
	ErrAlreadyRunning = errors.New("probe: a run is already active")
	ErrTransport      = errors.New("probe: transport failure")
)

// FieldError names one rejected field.
type FieldError struct {
	Field   string
	Message string
}

func (f FieldError) String() string { return f.Field + " " + f.Message }

// ValidationError lists every problem found with a Config or BaseRequest.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.String())
	}
	return ErrValidation.Error() + ": " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func (e *ValidationError) add(field, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: msg})
}

// AlreadyRunningError is returned by Start while another run is active.
type AlreadyRunningError struct {
	RunID string
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("%s (run %s)", ErrAlreadyRunning.Error(), e.RunID)
}

func (e *AlreadyRunningError) Unwrap() error { return ErrAlreadyRunning }

// TransportError aborts a run when a probe could not be exchanged.
type TransportError struct {
	Offset uint
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s at offset %ds: %v", ErrTransport.Error(), e.Offset, e.Err)
}

func (e *TransportError) Unwrap() []error { return []error{ErrTransport, e.Err} }

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func configValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks cfg and returns a *ValidationError on failure.
func (c Config) Validate() error {
	verr := &ValidationError{}
	collectFieldErrors(verr, configValidator().Struct(c))
	if len(verr.Fields) == 0 {
		return nil
	}
	return verr
}

func validateRun(cfg Config, base BaseRequest) error {
	verr := &ValidationError{}
	collectFieldErrors(verr, configValidator().Struct(cfg))
	if len(base.Raw) == 0 {
		verr.add("Request", "is empty")
	}
	if strings.TrimSpace(base.Endpoint.Host) == "" {
		verr.add("Endpoint.Host", "is required")
	}
	if base.Endpoint.Port < 0 || base.Endpoint.Port > 65535 {
		verr.add("Endpoint.Port", "is out of range")
	}
	if len(verr.Fields) == 0 {
		return nil
	}
	return verr
}

func collectFieldErrors(verr *ValidationError, err error) {
	if err == nil {
		return
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		verr.add("Config", err.Error())
		return
	}
	for _, fe := range fieldErrs {
		verr.add(fe.Field(), fieldMessage(fe))
	}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gtefield":
		return "must be greater than or equal to " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	default:
		return "failed validation: " + fe.Tag()
	}
}
