package api

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// Exchange records one request/response pair issued by the Client.
type Exchange struct {
	Method          string            `json:"method"`
	Route           string            `json:"route"` // path template, e.g. /api/lists/{id}
	Path            string            `json:"path"`
	URL             string            `json:"url"`
	RequestID       string            `json:"requestId,omitempty"`
	Status          int               `json:"status"` // 0 when no response arrived
	Duration        time.Duration     `json:"duration"`
	RequestHeaders  map[string]string `json:"requestHeaders,omitempty"`
	ResponseHeaders map[string]string `json:"responseHeaders,omitempty"`
	Body            []byte            `json:"-"`
	ErrorText       string            `json:"error,omitempty"`
}

// Responded reports whether a response was received.
func (e Exchange) Responded() bool { return e.Status > 0 }

// Observer is notified after every exchange, successful or not.
type Observer func(ctx context.Context, ex Exchange)

// Recorder collects exchanges for a single probe run.
type Recorder struct {
	exchanges []Exchange
}

// Observe implements Observer.
func (r *Recorder) Observe(_ context.Context, ex Exchange) {
	r.exchanges = append(r.exchanges, ex)
}

// Exchanges returns what was recorded so far.
func (r *Recorder) Exchanges() []Exchange {
	return r.exchanges
}

func headerMap(h http.Header) map[string]string {
	if h == nil {
		return nil
	}
	out := map[string]string{}
	for k, vals := range h {
		if len(vals) > 0 {
			out[strings.ToLower(k)] = vals[0]
		} else {
			out[strings.ToLower(k)] = ""
		}
	}
	return out
}
