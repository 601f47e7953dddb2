// Package errors categorises service errors so the HTTP layer can turn them
// into status codes without knowing the domain.
package errors

import (
	"errors"
	"net/http"
)

// Category defines error category
type Category int

const (
	// CategoryNoError is used for request tracking when a call succeeded.
	CategoryNoError Category = iota
	// CategoryDataError is invalid input: bad amounts, unknown assets, malformed payloads.
	CategoryDataError
	// CategoryUnauthorized means no caller identity could be established.
	CategoryUnauthorized
	// CategoryForbidden means the caller is known but may not use the resource.
	CategoryForbidden
	// CategoryResourceNotFound covers unknown swaps and pairs without a route.
	CategoryResourceNotFound
	// CategoryDataConflict means the resource moved on while the request was in flight.
	CategoryDataConflict
	// CategoryDependencyFailure means the routing service or a chain node failed.
	CategoryDependencyFailure
	// CategoryGeneralError The service failed in an unexpected way
	CategoryGeneralError
	// CategoryConnectionTimeout means a dependency did not answer in time.
	CategoryConnectionTimeout
)

var categories = map[Category]struct {
	name   string
	status int
}{
	CategoryNoError:           {"CategoryNoError", http.StatusOK},
	CategoryDataError:         {"CategoryDataError", http.StatusBadRequest},
	CategoryUnauthorized:      {"CategoryUnauthorized", http.StatusUnauthorized},
	CategoryForbidden:         {"CategoryForbidden", http.StatusForbidden},
	CategoryResourceNotFound:  {"CategoryResourceNotFound", http.StatusNotFound},
	CategoryDataConflict:      {"CategoryDataConflict", http.StatusConflict},
	CategoryDependencyFailure: {"CategoryDependencyFailure", http.StatusBadGateway},
	CategoryGeneralError:      {"CategoryGeneralError", http.StatusInternalServerError},
	CategoryConnectionTimeout: {"CategoryConnectionTimeout", http.StatusGatewayTimeout},
}

func (c Category) String() string {
	if info, ok := categories[c]; ok {
		return info.name
	}
	return categories[CategoryGeneralError].name
}

// ServiceError carries a caller-safe Message next to the internal Err that is
// only logged.
type ServiceError struct {
	Category Category
	Message  string
	Err      error
}

func (err ServiceError) Error() string {
	if err.Err != nil {
		return err.Err.Error()
	}
	return err.Message
}

func (err ServiceError) Unwrap() error {
	return err.Err
}

// StatusCode returns the HTTP status code for the error category
func (err ServiceError) StatusCode() int {
	if info, ok := categories[err.Category]; ok && err.Category != CategoryNoError {
		return info.status
	}
	return http.StatusInternalServerError
}

// Is reports whether err is a ServiceError of the given category.
func Is(err error, cat Category) bool {
	var svcErr *ServiceError
	return errors.As(err, &svcErr) && svcErr.Category == cat
}

// IsInternalError reports whether err should be logged as a server-side failure.
// Anything that is not a ServiceError counts as internal.
func IsInternalError(err error) bool {
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		return true
	}
	return svcErr.StatusCode() >= http.StatusInternalServerError
}

func newError(cat Category, err error, message string) error {
	if err == nil {
		err = errors.New(message)
	}
	return &ServiceError{Category: cat, Message: message, Err: err}
}

// GeneralError hides err behind "Internal Server Error".
func GeneralError(err error) error {
	if err == nil {
		err = errors.New("internal server error")
	}
	return &ServiceError{Category: CategoryGeneralError, Message: "Internal Server Error", Err: err}
}

func ResourceNotFoundError(err error, message string) error {
	return newError(CategoryResourceNotFound, err, message)
}

func BadRequestError(err error, message string) error {
	return newError(CategoryDataError, err, message)
}

func ForbiddenError(err error, message string) error {
	return newError(CategoryForbidden, err, message)
}

func UnAuthorizedError(err error, message string) error {
	return newError(CategoryUnauthorized, err, message)
}

func ConflictError(err error, message string) error {
	return newError(CategoryDataConflict, err, message)
}

func DependencyFailureError(err error, message string) error {
	return newError(CategoryDependencyFailure, err, message)
}

func ConnectionTimeoutError(err error, message string) error {
	return newError(CategoryConnectionTimeout, err, message)
}
