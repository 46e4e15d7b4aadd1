package calcom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"
)

const maxDiagnostic = 200

// Kind classifies gateway failures.
type Kind string

const (
	KindAuth       Kind = "auth"
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindRateLimit  Kind = "rate_limit"
	KindUpstream   Kind = "upstream"
)

// Error is the single error type returned by the gateway.
type Error struct {
	Kind    Kind
	Op      string
	Status  int      // upstream HTTP status, 0 for local failures
	Message string   // upstream diagnostic text, kept verbatim
	Fields  []string // offending parameters for validation failures
	Timeout bool
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("calcom ")
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(string(e.Kind))
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the gateway kind of err, or "" when err is not a gateway error.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

// AsError unwraps err into a gateway error.
func AsError(err error) (*Error, bool) {
	var ge *Error
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

func invalid(op, field, msg string) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: msg, Fields: []string{field}}
}

// kindForStatus maps an upstream status code onto the taxonomy.
func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return KindValidation
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	default:
		return KindUpstream
	}
}

// errorPayload covers the shapes Cal.com uses for error bodies.
type errorPayload struct {
	Message string          `json:"message"`
	Error   json.RawMessage `json:"error"`
}

func responseError(op string, status int, body []byte) *Error {
	return &Error{
		Kind:    kindForStatus(status),
		Op:      op,
		Status:  status,
		Message: diagnostic(body, status),
	}
}

func diagnostic(body []byte, status int) string {
	var p errorPayload
	if err := json.Unmarshal(body, &p); err == nil {
		if p.Message != "" {
			return p.Message
		}
		if len(p.Error) > 0 {
			var s string
			if json.Unmarshal(p.Error, &s) == nil && s != "" {
				return s
			}
			var nested errorPayload
			if json.Unmarshal(p.Error, &nested) == nil && nested.Message != "" {
				return nested.Message
			}
		}
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return http.StatusText(status)
	}
	return truncate(text, maxDiagnostic)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func transportError(op string, err error) *Error {
	err = redactURL(err)
	e := &Error{Kind: KindUpstream, Op: op, Message: err.Error(), Err: err}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		e.Timeout = true
		e.Message = "request timed out"
	}
	return e
}

// redactURL drops the query from a *url.Error so the apiKey parameter never
// reaches messages or logs.
func redactURL(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	clean := &url.Error{Op: ue.Op, URL: ue.URL, Err: ue.Err}
	if u, perr := url.Parse(ue.URL); perr == nil {
		u.RawQuery = ""
		clean.URL = u.String()
	} else {
		clean.URL = "(redacted)"
	}
	return clean
}
