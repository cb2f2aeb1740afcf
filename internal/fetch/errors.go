package fetch

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// TransientError is a retryable fetch failure: timeouts, connection
// problems, 429s and 5xx responses.
type TransientError struct {
	URI        string
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient fetch failure for %s: %v", e.URI, e.Err)
	}
	return fmt.Sprintf("transient fetch failure for %s: status %d", e.URI, e.StatusCode)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError is a failure that retrying cannot fix (404, 410 and
// other terminal client errors). It is never escalated.
type PermanentError struct {
	URI        string
	StatusCode int
	Reason     string
}

func (e *PermanentError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("permanent fetch failure for %s: %s", e.URI, e.Reason)
	}
	return fmt.Sprintf("permanent fetch failure for %s: status %d", e.URI, e.StatusCode)
}

// BlockedError means the response looks like an anti-bot wall. The
// primary tier escalates immediately instead of retrying.
type BlockedError struct {
	URI        string
	StatusCode int
	Marker     string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("blocked fetching %s: %s", e.URI, e.Marker)
}

// QualityError means both tiers produced content below the word-count
// threshold. Best carries the better of the two results so callers can
// report it; the item is skipped, not failed.
type QualityError struct {
	URI      string
	Words    int
	MinWords int
	Best     *Result
}

func (e *QualityError) Error() string {
	return fmt.Sprintf("low quality content for %s: %d words (minimum %d)", e.URI, e.Words, e.MinWords)
}

// IsTransient reports whether err is a retryable fetch failure.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// IsPermanent reports whether err is a terminal fetch failure.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// IsBlocked reports whether err is an anti-bot block.
func IsBlocked(err error) bool {
	var b *BlockedError
	return errors.As(err, &b)
}

// IsQuality reports whether err is a low-quality outcome.
func IsQuality(err error) bool {
	var q *QualityError
	return errors.As(err, &q)
}

// transientNetPatterns mark network-level errors worth retrying.
var transientNetPatterns = []string{
	"connection refused", "connection reset", "connection reset by peer",
	"temporary failure", "eof", "broken pipe", "no such host",
	"i/o timeout", "connection timed out", "timeout", "deadline exceeded",
}

// classifyNetErr wraps a transport-level error. Everything at this
// level is treated as retryable; DNS and routing blips resolve
// themselves more often than not.
func classifyNetErr(uri string, err error) error {
	return &TransientError{URI: uri, Err: err}
}

// looksTransient reports whether an error message matches a known
// retryable network pattern.
func looksTransient(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, p := range transientNetPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// classifyStatus routes a non-2xx response into the error taxonomy.
func classifyStatus(uri string, status int) error {
	switch {
	case status == http.StatusNotFound || status == http.StatusGone:
		return &PermanentError{URI: uri, StatusCode: status}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &BlockedError{URI: uri, StatusCode: status, Marker: http.StatusText(status)}
	case status == http.StatusTooManyRequests || status == http.StatusRequestTimeout:
		return &TransientError{URI: uri, StatusCode: status}
	case status >= 500:
		return &TransientError{URI: uri, StatusCode: status}
	case status >= 400:
		return &PermanentError{URI: uri, StatusCode: status}
	default:
		return nil
	}
}
