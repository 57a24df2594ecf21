// SPDX-License-Identifier: MIT

package fetcher

import (
	"errors"
	"fmt"
)

var (
	// ErrExhausted is returned when every attempt failed with a network error or 5xx.
	ErrExhausted = errors.New("fetch retries exhausted")
	// ErrBlocked marks a response that looks like a block or challenge page.
	// The FetchError still carries the page.
	ErrBlocked = errors.New("response looks blocked")
	// ErrTLS is a certificate validation failure that was not eligible for fallback.
	ErrTLS = errors.New("tls validation failed")
	// ErrInvalidURL rejects URLs that cannot be requested.
	ErrInvalidURL = errors.New("invalid url")
)

// FetchError describes a failed Fetch. Use errors.Is with the sentinels above.
type FetchError struct {
	Sentinel error
	URL      string
	Attempts int
	Status   int
	// Page is the last response received, if any.
	Page    *Page
	Verdict Verdict
	Err     error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s: %v", e.URL, e.Sentinel)
	if e.Status > 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Attempts > 0 {
		msg += fmt.Sprintf(" after %d attempt(s)", e.Attempts)
	}
	if e.Verdict.Blocked {
		msg += fmt.Sprintf(": %s", e.Verdict.Reason)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Err}
}

// PageFromError returns the degraded page carried by a FetchError, if any.
func PageFromError(err error) (*Page, bool) {
	var fe *FetchError
	if errors.As(err, &fe) && fe.Page != nil {
		return fe.Page, true
	}
	return nil, false
}
