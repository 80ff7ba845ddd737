package errors

import (
	"encoding/json"
	"fmt"
	"go.uber.org/zap"
)

// Details holds additional error details that can be viewed and logged.
type Details map[string]interface{}

// Error is the general error type for appearing errors in the arena.
type Error struct {
	// Code is the error code.
	Code Code
	// Kind is a more specific classification than Code. It is used by callers that
	// need to react to certain failures, for example in order to tell a player why
	// joining the queue was rejected.
	Kind Kind
	// Err is the original error that occurred.
	Err error
	// Message is the manually created message that can be used in order to trace the error.
	Message string
	// Details holds any error details.
	Details Details
}

func (e Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the original error so that errors.Is and errors.As from the
// standard library keep working.
func (e Error) Unwrap() error {
	return e.Err
}

// Cast casts the given error to Error. If the given one is not of type Error, an unknown one with error code
// ErrUnexpected is created and false returned
func Cast(err error) (Error, bool) {
	if e, ok := err.(Error); ok {
		return e, ok
	}
	if e, ok := err.(*Error); ok && e != nil {
		return *e, true
	}
	e := Error{
		Code:    ErrUnexpected,
		Kind:    KindUnexpected,
		Err:     err,
		Message: "unknown operation",
		Details: make(map[string]interface{}),
	}
	return e, false
}

// Wrap prefixes the message of err and merges details into it. Code and Kind
// are kept. A detail key that is already present is moved to a key with an
// underscore prefix.
func Wrap(err error, message string, details Details) error {
	e, rich := Cast(err)
	if rich {
		message = message + ": " + e.Message
	}
	merged := make(Details, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		if previous, ok := merged[k]; ok {
			merged["_"+k] = previous
		}
		merged[k] = v
	}
	if len(merged) == 0 && e.Details == nil {
		merged = nil
	}
	e.Message = message
	e.Details = merged
	return e
}

// FromErr creates an Error with the given details.
func FromErr(message string, code Code, err error, details Details) error {
	return Error{
		Code:    code,
		Err:     err,
		Message: message,
		Details: details,
	}
}

// HasKind checks whether the given error is an Error with the given Kind.
func HasKind(err error, kind Kind) bool {
	e, ok := Cast(err)
	return ok && e.Kind == kind
}

// detailsAsJSON encodes the Details of the given Error as JSON string.
func detailsAsJSON(logger *zap.Logger, err error) []byte {
	e, _ := Cast(err)
	if e.Details == nil {
		return nil
	}
	b, err := json.Marshal(e.Details)
	if err != nil {
		if logger != nil {
			Log(logger, Error{
				Code:    ErrInternal,
				Kind:    KindEncodeJSON,
				Message: "marshal error details",
				Err:     err,
				Details: Details{
					"toMarshal": fmt.Sprintf("%+v", e.Details),
				},
			})
		}
		return nil
	}
	return b
}

// Log logs err at a level depending on its Code. Failures caused by users or
// aborted operations are warnings. ErrFatal exits the process.
func Log(logger *zap.Logger, err error) {
	e, _ := Cast(err)
	fields := make([]zap.Field, 0, 3+len(e.Details))
	fields = append(fields, zap.String("err_code", string(e.Code)))
	if e.Kind != "" {
		fields = append(fields, zap.String("err_kind", string(e.Kind)))
	}
	if e.Err != nil {
		fields = append(fields, zap.String("err_orig", e.Err.Error()))
	}
	for k, v := range e.Details {
		fields = append(fields, zap.Any("err_details_v_"+k, v))
	}
	switch e.Code {
	case ErrBadRequest, ErrProtocolViolation, ErrNotFound, ErrAborted:
		logger.Warn(e.Error(), fields...)
	case ErrFatal:
		logger.Fatal(e.Error(), fields...)
	default:
		logger.Error(e.Error(), fields...)
	}
}

// Prettify returns a detailed error string with error details.
func Prettify(err error) string {
	e, _ := Cast(err)
	return fmt.Sprintf("Code: %s\nKind: %s\nOriginal Error: %+v\nMessage: %s\nDetails: %s\n",
		e.Code, e.Kind, e.Err, e.Message, detailsAsJSON(nil, e))
}

// BlameUser reports whether err was caused by the requesting user, which is
// the case for ErrBadRequest, ErrProtocolViolation and ErrNotFound.
func BlameUser(err error) bool {
	e, ok := Cast(err)
	if !ok {
		return false
	}
	switch e.Code {
	case ErrBadRequest, ErrProtocolViolation, ErrNotFound:
		return true
	default:
		return false
	}
}
