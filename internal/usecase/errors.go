package usecase

import "fmt"

type ErrorCode string

const (
	ErrorInvalidInput ErrorCode = "INVALID_INPUT"
	ErrorUpstream     ErrorCode = "UPSTREAM_ERROR"
	ErrorInternal     ErrorCode = "INTERNAL_ERROR"
)

// Reasons attached to *Error. Transports map them to user-facing messages.
const (
	ReasonInvalidPages       = "invalid_pages"
	ReasonTooManyPages       = "too_many_pages"
	ReasonFileTypeNotAllowed = "file_type_not_allowed"
	ReasonUploadSave         = "upload_save_error"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Message returns the text shown to the user for a validation failure.
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	switch e.Reason {
	case ReasonTooManyPages:
		return "Please select a maximum of 2 pages."
	case ReasonInvalidPages:
		return "Invalid page numbers entered."
	case ReasonFileTypeNotAllowed:
		return "File type not allowed! Please upload an image, PDF, or DOCX file."
	default:
		return "Something went wrong while processing your request."
	}
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}
