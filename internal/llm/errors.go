package llm

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"google.golang.org/genai"
)

var (
	// ErrAllModelsExhausted is matched by *ExhaustedError.
	ErrAllModelsExhausted = errors.New("all model attempts failed")
	// ErrMalformedOutput marks a response that did not parse or validate.
	// The invoker treats it like any other per-candidate failure.
	ErrMalformedOutput = errors.New("malformed model output")
	// ErrRateLimited marks a provider "too many requests" condition.
	ErrRateLimited = errors.New("model rate limited")
)

// Attempt records the outcome of one candidate.
type Attempt struct {
	Model string
	Err   error
}

// ExhaustedError is returned when every candidate in the chain failed.
type ExhaustedError struct {
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return ErrAllModelsExhausted.Error() + ": no candidates configured"
	}
	return fmt.Sprintf("%s. Last error: %v", ErrAllModelsExhausted, e.Last())
}

// Last is the error from the final candidate tried.
func (e *ExhaustedError) Last() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1].Err
}

func (e *ExhaustedError) Is(target error) bool { return target == ErrAllModelsExhausted }

func (e *ExhaustedError) Unwrap() error { return e.Last() }

var rateLimitPatterns = []string{
	"rate limit", "rate-limit", "ratelimit", "too many requests",
	"resource exhausted", "resource has been exhausted", "resource_exhausted",
	"quota exceeded", "quota_exceeded", "throttled",
}

// statusCode429 matches a 429 that reads as a status code: leading the
// message or following "error", "status", "code" or "http".
var statusCode429 = regexp.MustCompile(`(?:^|\b(?:error|status|code|http)\W{0,3})429\b`)

// IsRateLimited reports whether err is a provider "too many requests". Typed
// API errors are checked by code; other SDKs surface 429s as wrapped
// errors, so their messages are matched.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code == http.StatusTooManyRequests
	}
	msg := strings.ToLower(err.Error())
	if statusCode429.MatchString(msg) {
		return true
	}
	for _, p := range rateLimitPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func isMalformed(err error) bool { return errors.Is(err, ErrMalformedOutput) }
