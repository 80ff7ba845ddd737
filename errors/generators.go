package errors

import "fmt"

// NewResourceNotFoundError returns a new ErrNotFound error with kind
// KindResourceNotFound and the given message.
func NewResourceNotFoundError(message string, details Details) error {
	return Error{
		Code:    ErrNotFound,
		Kind:    KindResourceNotFound,
		Message: message,
		Details: details,
	}
}

// NewBadRequestError returns a new ErrBadRequest error with the given Kind.
func NewBadRequestError(kind Kind, message string, details Details) error {
	return Error{
		Code:    ErrBadRequest,
		Kind:    kind,
		Message: message,
		Details: details,
	}
}

// NewInternalError returns a new ErrInternal error with the given message.
func NewInternalError(message string, details Details) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindUnexpected,
		Message: message,
		Details: details,
	}
}

// NewInternalErrorFromErr returns a new ErrInternal error with the given
// original error.
func NewInternalErrorFromErr(err error, message string, details Details) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindUnexpected,
		Err:     err,
		Message: message,
		Details: details,
	}
}

// NewContextAbortedError returns an ErrAborted error with kind
// KindContextAborted for the given operation.
func NewContextAbortedError(operation string) error {
	return Error{
		Code:    ErrAborted,
		Kind:    KindContextAborted,
		Message: fmt.Sprintf("context aborted while %s", operation),
	}
}

// NewMatchAbortedError returns an ErrAborted error with kind KindMatchAborted.
func NewMatchAbortedError(matchID string, reason string) error {
	return Error{
		Code:    ErrAborted,
		Kind:    KindMatchAborted,
		Message: fmt.Sprintf("match aborted: %s", reason),
		Details: Details{"match_id": matchID},
	}
}

// NewQueryToSQLError returns an ErrInternal error for failed query building.
func NewQueryToSQLError(err error, details Details) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDB,
		Err:     err,
		Message: "query to sql",
		Details: details,
	}
}

// NewExecQueryError returns an ErrInternal error for a failed query execution.
func NewExecQueryError(err error, query string, details Details) error {
	if details == nil {
		details = Details{}
	}
	details["query"] = query
	return Error{
		Code:    ErrInternal,
		Kind:    KindDB,
		Err:     err,
		Message: "exec query",
		Details: details,
	}
}

// NewScanDBRowError returns an ErrInternal error for a row that could not be
// scanned.
func NewScanDBRowError(err error, query string) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDB,
		Err:     err,
		Message: "scan db row",
		Details: Details{"query": query},
	}
}

// NewDBTxBeginError returns an ErrInternal error for a transaction that could
// not be started.
func NewDBTxBeginError(err error) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDB,
		Err:     err,
		Message: "begin tx",
	}
}

// NewDBTxCommitError returns an ErrInternal error for a failed commit.
func NewDBTxCommitError(err error) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDB,
		Err:     err,
		Message: "commit tx",
	}
}
