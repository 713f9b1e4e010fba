package feed

import (
	"fmt"
	"net/http"
)

// Result is the outcome of a feed request: a status code plus a payload that is
// present only when the status is 200 OK. Both fields are unexported so the two
// can never disagree.
type Result[T any] struct {
	status int
	data   *T
}

// OK builds a successful result carrying v
func OK[T any](v T) Result[T] {
	return Result[T]{status: http.StatusOK, data: &v}
}

// Status builds a payload-free result. A 200 must carry data, so passing it
// panics; use OK.
func Status[T any](code int) Result[T] {
	if code == http.StatusOK {
		panic("feed.Status: 200 requires a payload, use feed.OK")
	}
	return Result[T]{status: code}
}

// StatusCode returns the HTTP status of the response, zero when there was none
func (r Result[T]) StatusCode() int {
	return r.status
}

// Data returns the payload and whether one is present
func (r Result[T]) Data() (T, bool) {
	if r.data == nil || r.status != http.StatusOK {
		var zero T
		return zero, false
	}
	return *r.data, true
}

// Found reports a 200 OK status
func (r Result[T]) Found() bool {
	return r.status == http.StatusOK && r.data != nil
}

// NotFound reports a 404 status
func (r Result[T]) NotFound() bool {
	return r.status == http.StatusNotFound
}

// IsZero reports whether no request produced this result
func (r Result[T]) IsZero() bool {
	return r.status == 0
}

func (r Result[T]) String() string {
	if r.status == 0 {
		return "no response"
	}
	return fmt.Sprintf("%d %s", r.status, http.StatusText(r.status))
}
