package http

import (
	"errors"
	"net/http"
	"net/http/httputil"
	"strings"
	"time"

	"github.com/oshokin/sso-keeper/internal/config"
	"github.com/oshokin/sso-keeper/internal/logger"
	"github.com/oshokin/sso-keeper/internal/utils"
)

// RedactedValue replaces credential header values in traffic dumps.
const RedactedValue = "[redacted]"

// LogTransport is an http.RoundTripper that dumps SSO traffic at debug level.
// Authorization and every additional credential header are redacted in the dumps.
type LogTransport struct {
	// next is the underlying HTTP round tripper.
	next http.RoundTripper
	// maxLogLength is the maximum length of logged request/response data.
	maxLogLength uint64
	// sensitiveHeaders lists header names whose values never reach the logs.
	sensitiveHeaders []string
}

// Static error definitions for better error handling.
var (
	// ErrNilRequest indicates that the HTTP request is nil.
	ErrNilRequest = errors.New("request is nil")
)

// NewLogTransport creates and returns a new instance of LogTransport.
// If maxLogLength is 0, it defaults to config.DefaultMaxLogLength.
// Authorization is always redacted; sensitiveHeaders adds more names, such as the refresh header.
func NewLogTransport(next http.RoundTripper, maxLogLength uint64, sensitiveHeaders ...string) http.RoundTripper {
	if maxLogLength == 0 {
		maxLogLength = config.DefaultMaxLogLength
	}

	headers := []string{AuthorizationHeader}

	for _, name := range sensitiveHeaders {
		if name = strings.TrimSpace(name); name != "" {
			headers = append(headers, name)
		}
	}

	return &LogTransport{
		next:             next,
		maxLogLength:     maxLogLength,
		sensitiveHeaders: headers,
	}
}

// RoundTrip executes a single HTTP transaction and logs the request and response.
// It implements the http.RoundTripper interface.
func (t *LogTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, ErrNilRequest
	}

	ctx := req.Context()

	if !logger.IsDebugEnabled(ctx) {
		return t.next.RoundTrip(req)
	}

	requestDump := t.dumpRequest(req)

	startTime := time.Now()

	resp, err := t.next.RoundTrip(req)

	duration := time.Since(startTime)

	if err != nil {
		logger.Debugf(ctx, "Request failed: %s %s | Error: %v", req.Method, req.URL.String(), err)

		return nil, err
	}

	responseDump := t.dumpResponse(resp)

	logger.Debugf(ctx, "%s %s [%d] %s\nRequest: %s\nResponse: %s",
		req.Method, req.URL.Path, resp.StatusCode, duration, requestDump, responseDump)

	return resp, nil
}

// dumpRequest dumps a shallow copy carrying redacted headers.
// The drained body is handed back to req so the request can still be sent.
func (t *LogTransport) dumpRequest(req *http.Request) string {
	redacted := *req
	redacted.Header = t.redact(req.Header)

	dump, err := httputil.DumpRequest(&redacted, true)
	req.Body = redacted.Body

	if err != nil {
		return err.Error()
	}

	return t.truncate(dump)
}

func (t *LogTransport) dumpResponse(resp *http.Response) string {
	redacted := *resp
	redacted.Header = t.redact(resp.Header)

	// Binary bodies are left out of the dump.
	contentType := resp.Header.Get("Content-Type")

	dump, err := httputil.DumpResponse(&redacted, utils.IsTextContentType(contentType))
	resp.Body = redacted.Body

	if err != nil {
		return err.Error()
	}

	return t.truncate(dump)
}

// redact returns a copy of header with sensitive values replaced.
func (t *LogTransport) redact(header http.Header) http.Header {
	result := header.Clone()

	for key := range result {
		for _, name := range t.sensitiveHeaders {
			if strings.EqualFold(key, name) {
				result[key] = []string{RedactedValue}

				break
			}
		}
	}

	return result
}

func (t *LogTransport) truncate(data []byte) string {
	if uint64(len(data)) > t.maxLogLength {
		return string(data[:t.maxLogLength]) + "... [truncated]"
	}

	return string(data)
}
