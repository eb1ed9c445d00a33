// Package kernelerr implements the kernel's error taxonomy: every
// dispatcher failure carries a Category, a Code, a Retriable flag, and
// optional Details, instead of an ad-hoc error string.
package kernelerr

import (
	"errors"
	"fmt"
)

// Category is one of the four buckets the dispatcher classifies failures into.
type Category string

const (
	CategoryPermission Category = "permission"
	CategoryResource   Category = "resource"
	CategoryValidation Category = "validation"
	CategoryExecution  Category = "execution"
)

// Code is a specific error code within a Category.
type Code string

const (
	CodeNotAuthorized Code = "not_authorized"

	CodeNotFound          Code = "not_found"
	CodeDeleted           Code = "deleted"
	CodeInsufficientFunds Code = "insufficient_funds"
	CodeQuotaExceeded     Code = "quota_exceeded"
	CodeBudgetExhausted   Code = "budget_exhausted"

	CodeInvalidArgument Code = "invalid_argument"
	CodeInvalidType     Code = "invalid_type"
	CodeIDCollision     Code = "id_collision"

	CodeRuntimeError  Code = "runtime_error"
	CodeTimeout       Code = "timeout"
	CodeInvokeTooDeep Code = "invoke_too_deep"
)

// retriable records, per code, whether the same call may succeed later
// without external action.
var retriable = map[Code]bool{
	CodeNotAuthorized:     false,
	CodeNotFound:          false,
	CodeDeleted:           false,
	CodeInsufficientFunds: false,
	CodeQuotaExceeded:     true,
	CodeBudgetExhausted:   false,
	CodeInvalidArgument:   false,
	CodeInvalidType:       false,
	CodeIDCollision:       false,
	CodeRuntimeError:      false,
	CodeTimeout:           true,
	CodeInvokeTooDeep:     false,
}

// categoryOf maps a code to its category; used when a KernelError is built
// via New without an explicit category.
var categoryOf = map[Code]Category{
	CodeNotAuthorized:     CategoryPermission,
	CodeNotFound:          CategoryResource,
	CodeDeleted:           CategoryResource,
	CodeInsufficientFunds: CategoryResource,
	CodeQuotaExceeded:     CategoryResource,
	CodeBudgetExhausted:   CategoryResource,
	CodeInvalidArgument:   CategoryValidation,
	CodeInvalidType:       CategoryValidation,
	CodeIDCollision:       CategoryValidation,
	CodeRuntimeError:      CategoryExecution,
	CodeTimeout:           CategoryExecution,
	CodeInvokeTooDeep:     CategoryExecution,
}

// KernelError is the structured error every dispatcher-facing failure uses.
type KernelError struct {
	Code      Code
	Category  Category
	Message   string
	Details   map[string]any
	Retriable bool
	Err       error
}

func (e *KernelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s/%s] %s: %v", e.Category, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s/%s] %s", e.Category, e.Code, e.Message)
}

func (e *KernelError) Unwrap() error { return e.Err }

// WithDetail attaches a detail key/value and returns the receiver for chaining.
func (e *KernelError) WithDetail(key string, value any) *KernelError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New builds a KernelError for code, deriving category and retriable from
// the code's registration.
func New(code Code, message string) *KernelError {
	return &KernelError{
		Code:      code,
		Category:  categoryOf[code],
		Message:   message,
		Retriable: retriable[code],
	}
}

// Wrap builds a KernelError that carries an underlying cause.
func Wrap(code Code, message string, err error) *KernelError {
	e := New(code, message)
	e.Err = err
	return e
}

// As extracts a *KernelError from err's chain, if present.
func As(err error) (*KernelError, bool) {
	var ke *KernelError
	if errors.As(err, &ke) {
		return ke, true
	}
	return nil, false
}

// Convenience constructors used throughout the dispatcher and executor.

func NotAuthorized(reason string) *KernelError { return New(CodeNotAuthorized, reason) }
func NotFound(artifactID string) *KernelError {
	return New(CodeNotFound, "artifact not found").WithDetail("artifact_id", artifactID)
}
func Deleted(artifactID string) *KernelError {
	return New(CodeDeleted, "artifact is deleted").WithDetail("artifact_id", artifactID)
}
func InsufficientFunds(resource string, required, available int64) *KernelError {
	return New(CodeInsufficientFunds, "insufficient balance").
		WithDetail("resource", resource).
		WithDetail("required", required).
		WithDetail("available", available)
}
func QuotaExceeded(resource string, retryAfterSeconds float64) *KernelError {
	return New(CodeQuotaExceeded, "rate limit exceeded").
		WithDetail("resource", resource).
		WithDetail("retry_after_seconds", retryAfterSeconds)
}
func BudgetExhausted(resource string) *KernelError {
	return New(CodeBudgetExhausted, "budget exhausted").WithDetail("resource", resource)
}
func InvalidArgument(field, reason string) *KernelError {
	return New(CodeInvalidArgument, "invalid argument").
		WithDetail("field", field).
		WithDetail("reason", reason)
}
func InvalidType(field, expected string) *KernelError {
	return New(CodeInvalidType, "invalid type").
		WithDetail("field", field).
		WithDetail("expected", expected)
}
func IDCollision(id string) *KernelError {
	return New(CodeIDCollision, "id already registered").WithDetail("id", id)
}
func RuntimeError(err error) *KernelError {
	return Wrap(CodeRuntimeError, "artifact code raised an error", err)
}
func Timeout(operation string) *KernelError {
	return New(CodeTimeout, "operation timed out").WithDetail("operation", operation)
}
func InvokeTooDeep(depth, max int) *KernelError {
	return New(CodeInvokeTooDeep, "invocation depth cap exceeded").
		WithDetail("depth", depth).
		WithDetail("max_depth", max)
}
