package orchestrator

import (
	"errors"
	"fmt"
)

// ValidationError is a bad request: an unknown pipeline, a dangling library
// reference, an unsupported step or an invalid filter set. It is raised
// before any side effect.
type ValidationError struct {
	Msg string
	Err error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return "orchestrator: " + e.Msg + ": " + e.Err.Error()
	}
	return "orchestrator: " + e.Msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalidf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// UpstreamError is a failure of a collaborator: the article store, the
// language model, the artifact sink or a delivery provider.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("orchestrator: %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// MalformedContentError means the model replied with text no repair step
// could turn into a content tree.
type MalformedContentError struct {
	Raw string
	Err error
}

func (e *MalformedContentError) Error() string {
	return "orchestrator: malformed content: " + e.Err.Error()
}

func (e *MalformedContentError) Unwrap() error { return e.Err }

// TemplateRenderError is a formatting template that failed to parse or
// execute. The report still gets the error page.
type TemplateRenderError struct {
	Err error
}

func (e *TemplateRenderError) Error() string {
	return "orchestrator: render template: " + e.Err.Error()
}

func (e *TemplateRenderError) Unwrap() error { return e.Err }
