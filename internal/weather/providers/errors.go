package providers

import (
	"fmt"
	"strings"
)

// Kind is the retry class of a failed fetch.
type Kind int

const (
	// KindTransport covers transient network failures; they are retried.
	KindTransport Kind = iota + 1
	// KindProtocol covers everything else that went wrong before a body was
	// in hand: HTTP status, oversized body, bad request, cancellation.
	KindProtocol
	// KindParse means a 200 response carried a body that is not a JSON object.
	KindParse
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindParse:
		return "parse"
	default:
		return "unknown"
	}
}

// Human readable failure reasons.
const (
	ReasonConnectionRefused = "Connection Refused"
	ReasonNotConnected      = "Not Connected"
	ReasonConnectionLost    = "Connection Lost"
	ReasonReadTimeout       = "Read Timeout"
	ReasonTooLarge          = "Response Too Large"
	ReasonEncoding          = "Encoding"
	ReasonTLS               = "TLS Verification"
	ReasonCancelled         = "Cancelled"
	ReasonUnknown           = "Unknown Error"
)

// FetchError describes a fetch that ended without a record.
type FetchError struct {
	Endpoint   string
	Kind       Kind
	Reason     string
	StatusCode int // set for HTTP status failures
	Attempts   int

	// RSSI is the uplink signal strength at failure time, when HasRSSI.
	RSSI    int
	HasRSSI bool

	Err error
}

// Error renders e.g. "Connection Lost RSSI:-71dBm (after 3 attempts)".
func (e *FetchError) Error() string {
	var b strings.Builder
	b.WriteString(e.Reason)
	if e.Kind == KindParse && e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.HasRSSI {
		fmt.Fprintf(&b, " RSSI:%ddBm", e.RSSI)
	}
	if e.Attempts > 1 {
		fmt.Fprintf(&b, " (after %d attempts)", e.Attempts)
	}
	return b.String()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt could succeed.
func (e *FetchError) Retryable() bool {
	return e.Kind == KindTransport
}

func transportError(reason string, err error) *FetchError {
	return &FetchError{Kind: KindTransport, Reason: reason, Err: err}
}

func protocolError(reason string, err error) *FetchError {
	return &FetchError{Kind: KindProtocol, Reason: reason, Err: err}
}

func statusError(code int) *FetchError {
	return &FetchError{
		Kind:       KindProtocol,
		Reason:     fmt.Sprintf("HTTP %d", code),
		StatusCode: code,
		Err:        fmt.Errorf("%w: %d", errUnexpected, code),
	}
}

func parseError(err error) *FetchError {
	return &FetchError{Kind: KindParse, Reason: "JSON parse", Err: err}
}
