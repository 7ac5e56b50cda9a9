package jsonrpc

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindParseError     Kind = "parse_error"
	KindInvalidRequest Kind = "invalid_request"
	KindMethodNotFound Kind = "method_not_found"
	KindInvalidParams  Kind = "invalid_params"
	KindClientRejected Kind = "client_rejected"
	KindOptionMismatch Kind = "option_mismatch"
	KindOrderNotFound  Kind = "order_not_found"
	KindInternalError  Kind = "internal_error"
)

type errorType struct {
	Code       int
	Message    string
	HTTPStatus int
}

var errorTypes = map[Kind]errorType{
	KindParseError:     {Code: -32700, Message: "Parse error", HTTPStatus: http.StatusBadRequest},
	KindInvalidRequest: {Code: -32600, Message: "Invalid request", HTTPStatus: http.StatusBadRequest},
	KindMethodNotFound: {Code: -32601, Message: "Method not found", HTTPStatus: http.StatusBadRequest},
	KindInvalidParams:  {Code: -32602, Message: "Invalid params", HTTPStatus: http.StatusBadRequest},
	KindClientRejected: {Code: 1, Message: "Client rejected", HTTPStatus: http.StatusUnauthorized},
	KindOptionMismatch: {Code: 100, Message: "Option mismatch", HTTPStatus: http.StatusBadRequest},
	KindOrderNotFound:  {Code: 101, Message: "Order not found", HTTPStatus: http.StatusNotFound},
	KindInternalError:  {Code: -32603, Message: "Internal error", HTTPStatus: http.StatusInternalServerError},
}

// Data carries machine-readable detail alongside an error. It is always
// serialized as an object.
type Data map[string]any

// Error is a protocol-level error. Only errors of this type reach clients
// with their own code and message; everything else becomes internal_error.
type Error struct {
	Kind       Kind
	Code       int
	Message    string
	HTTPStatus int
	Data       Data
}

func NewError(kind Kind, data Data) *Error {
	t, ok := errorTypes[kind]
	if !ok {
		kind = KindInternalError
		t = errorTypes[kind]
	}
	if data == nil {
		data = Data{}
	}
	return &Error{
		Kind:       kind,
		Code:       t.Code,
		Message:    t.Message,
		HTTPStatus: t.HTTPStatus,
		Data:       data,
	}
}

// Errorf builds an error whose data holds a human readable message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return NewError(kind, Data{"message": fmt.Sprintf(format, args...)})
}

func (e *Error) Error() string {
	if msg, ok := e.Data["message"].(string); ok && msg != "" {
		return fmt.Sprintf("%s (%d): %s", e.Message, e.Code, msg)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Code)
}

// Is matches errors of the same kind so callers can use errors.Is with a
// bare NewError(kind, nil) target.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Normalize returns the protocol error carried by err, or internal_error.
// The second return reports whether err had to be folded.
func Normalize(err error) (*Error, bool) {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr, false
	}
	return NewError(KindInternalError, nil), true
}
