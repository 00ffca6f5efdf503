package docsdk

import (
	"errors"
	"fmt"

	"github.com/imroc/req/v3"
)

var (
	ErrNoBaseURL    = errors.New("sdk: base url missing")
	ErrNoToken      = errors.New("sdk: token missing")
	ErrCacheTTL     = errors.New("sdk: cache ttl must be at least 1ms")
	ErrPageNotFound = errors.New("sdk: page not found")
	ErrUnauthorized = errors.New("sdk: unauthorized")
)

const (
	CodeInvalidRequest = "E_INVALID_REQUEST" // malformed body or parameters
	CodeUnauthorized   = "E_UNAUTHORIZED"    // missing, invalid or expired token
	CodePageNotFound   = "E_PAGE_NOT_FOUND"  // no page with that id
	CodePageArchived   = "E_PAGE_ARCHIVED"   // page exists but was archived
	CodeRateLimited    = "E_RATE_LIMITED"    // too many requests
	CodeInternalError  = "E_INTERNAL_ERROR"  // server side failure
)

// APIError is the error body returned by the document service
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

func NewAPIError(code, message string) *APIError {
	return &APIError{Code: code, Message: message}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %s - %s", e.Code, e.Message)
}

// Is maps service codes onto the package sentinels
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrPageNotFound:
		return e.Code == CodePageNotFound
	case ErrUnauthorized:
		return e.Code == CodeUnauthorized
	}
	return false
}

func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		return fmt.Errorf("http request error: %s %w", operation, requestErr)
	}

	if resp.IsErrorState() {
		if err, ok := resp.ErrorResult().(*APIError); ok && err.Code != "" {
			return fmt.Errorf("%s: %w", operation, err)
		}
		return fmt.Errorf("%s: unexpected status %s", operation, resp.Status)
	}

	return nil
}
