package service

import (
	"errors"
	"fmt"
)

// Kind classifies a service failure
type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindBusinessRule
	KindConflict
	KindUnauthorized
	KindForbidden
	KindUnexpected
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindBusinessRule:
		return "business_rule"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	}
	return "unexpected"
}

// Error codes returned to callers
const (
	CodeValidation          = "validation_error"
	CodeLineItemsRequired   = "line_items_required"
	CodeInvalidClientID     = "invalid_client_id"
	CodeInvalidDeliveryDate = "invalid_delivery_date"
	CodeInvalidPaymentType  = "invalid_payment_type"
	CodeInvalidStatus       = "invalid_status"
	CodeDeliveryDateInPast  = "delivery_date_in_past"
	CodeClientNotFound      = "client_not_found"
	CodeInvalidLineItem     = "invalid_line_item"
	CodeProductNotFound     = "product_not_found"
	CodeInsufficientStock   = "insufficient_stock"
	CodePriceMismatch       = "price_mismatch"
	CodeOrderNotFound       = "order_not_found"
	CodeInvalidTransition   = "invalid_transition"
	CodeOrderNotEditable    = "order_not_editable"
	CodeConflict            = "conflict"
	CodeInvalidSearch       = "invalid_search"
	CodeUserNotFound        = "user_not_found"
	CodeRequestNotFound     = "account_request_not_found"
	CodeRequestProcessed    = "account_request_processed"
	CodeEmailTaken          = "email_taken"
	CodeInvalidCredentials  = "invalid_credentials"
	CodeInvalidResetCode    = "invalid_reset_code"
	CodeUnauthorized        = "unauthorized"
	CodeForbidden           = "forbidden"
	CodeInternal            = "internal_error"
)

// Error is the typed failure every service operation returns. Details carries
// machine-readable context such as the offending product id.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// With adds a detail entry and returns e
func (e *Error) With(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = map[string]interface{}{}
	}
	e.Details[key] = value
	return e
}

func newError(kind Kind, code, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// ValidationError reports malformed or missing input
func ValidationError(code, format string, args ...interface{}) *Error {
	return newError(KindValidation, code, format, args...)
}

// NotFoundError reports an absent client, product, order or account
func NotFoundError(code, format string, args ...interface{}) *Error {
	return newError(KindNotFound, code, format, args...)
}

// BusinessRuleError reports well-formed input the current state rejects
func BusinessRuleError(code, format string, args ...interface{}) *Error {
	return newError(KindBusinessRule, code, format, args...)
}

// ConflictError reports contention the caller may retry
func ConflictError(err error) *Error {
	e := newError(KindConflict, CodeConflict, "the order could not be completed because of concurrent updates, please retry")
	e.Err = err
	return e
}

// UnauthorizedError reports a missing or invalid identity
func UnauthorizedError(code, format string, args ...interface{}) *Error {
	return newError(KindUnauthorized, code, format, args...)
}

// ForbiddenError reports an identity without the required role
func ForbiddenError(format string, args ...interface{}) *Error {
	return newError(KindForbidden, CodeForbidden, format, args...)
}

// UnexpectedError wraps an infrastructure failure. Its message never
// includes err.
func UnexpectedError(err error) *Error {
	e := newError(KindUnexpected, CodeInternal, "internal server error")
	e.Err = err
	return e
}

// AsError extracts the service error from err, wrapping anything else as
// unexpected
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return UnexpectedError(err)
}

// IsKind reports whether err is a service error of kind k
func IsKind(err error, k Kind) bool {
	var svcErr *Error
	return errors.As(err, &svcErr) && svcErr.Kind == k
}
