package probe

import (
	"errors"
	"fmt"
	"time"

	"pkt.systems/shopprobe/internal/api"
)

var (
	// ErrNotAuthenticated is returned when a probe needs a token and the
	// session has none.
	ErrNotAuthenticated = errors.New("authentication required: log in or register a user first")
	// ErrNoActiveList is returned when a probe needs a list and none was created.
	ErrNoActiveList = errors.New("no list created: run create-list first")
	// ErrCancelled is returned when the user cancels a selection prompt.
	ErrCancelled = errors.New("cancelled by user")
	// ErrNoCategories is returned when the catalogue has no categories.
	ErrNoCategories = errors.New("no categories available")
	// ErrMissingToken is returned when register/login answered 2xx without a token.
	ErrMissingToken = errors.New("response carried no token")
	// ErrMissingListID is returned when create-list answered 2xx without an id.
	ErrMissingListID = errors.New("response carried no list id")
)

// Result is the outcome of one probe run. Err holds the failure detail and is
// nil when Passed is true.
type Result struct {
	Probe     string         `json:"probe"`
	Title     string         `json:"title"`
	Passed    bool           `json:"passed"`
	Skipped   bool           `json:"skipped,omitempty"`
	Err       error          `json:"-"`
	ErrorText string         `json:"error,omitempty"`
	Duration  time.Duration  `json:"duration"`
	Exchanges []api.Exchange `json:"exchanges,omitempty"`
}

// Failed reports whether the probe ran and did not pass.
func (r Result) Failed() bool {
	return !r.Passed && !r.Skipped
}

// CheckError wraps verifier failures for a probe whose HTTP calls succeeded.
type CheckError struct {
	Probe string
	Err   error
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("%s: checks failed: %v", e.Probe, e.Err)
}

func (e *CheckError) Unwrap() error { return e.Err }
