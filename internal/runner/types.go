package runner

import (
	"context"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"pkt.systems/pslog"
	"pkt.systems/shopprobe/internal/api"
	"pkt.systems/shopprobe/internal/probe"
	"pkt.systems/shopprobe/internal/prompt"
)

// Prober is the public interface exposed by this module. It keeps one session
// and runs one probe at a time; it is not safe for concurrent use.
type Prober interface {
	// RunAll runs the sequential plan: warm-up, every probe, manual hints.
	RunAll(ctx context.Context) (RunSummary, error)
	// Run executes a single probe by name.
	Run(ctx context.Context, name string) (probe.Result, error)
	// Menu drives the numbered menu from in until exit or end of input. It
	// owns in and closes it before returning.
	Menu(ctx context.Context, in prompt.LineReader) error
	// Probes lists the catalogue in menu order.
	Probes() []probe.Probe
	// Session returns a copy of the current session.
	Session() probe.Session
}

// RunSummary aggregates the results of a sequential run.
type RunSummary struct {
	BaseURL      string         `json:"baseUrl"`
	Results      []probe.Result `json:"results"`
	Total        int            `json:"total"`
	Passed       int            `json:"passed"`
	Failed       int            `json:"failed"`
	Skipped      int            `json:"skipped"`
	TotalElapsed time.Duration  `json:"totalElapsed"`
}

func (s *RunSummary) add(res probe.Result) {
	s.Results = append(s.Results, res)
	s.Total++
	switch {
	case res.Skipped:
		s.Skipped++
	case res.Passed:
		s.Passed++
	default:
		s.Failed++
	}
}

// Delays are the pauses the runner takes. Zero disables a pause.
type Delays struct {
	Warmup time.Duration // before the first probe of a sequential run
	Step   time.Duration // after every probe of a sequential run
	Menu   time.Duration // after every menu dispatch
}

// DefaultDelays returns the stock pacing.
func DefaultDelays() Delays {
	return Delays{Warmup: 3 * time.Second, Step: time.Second, Menu: 500 * time.Millisecond}
}

// Option modifies a Prober at construction time.
type Option func(*runnerConfig)

// WithLogger overrides the default logger (pslog console on stderr).
func WithLogger(logger pslog.Base) Option {
	return func(rc *runnerConfig) { rc.logger = logger }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(rc *runnerConfig) { rc.httpClient = client }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(rc *runnerConfig) { rc.timeout = timeout }
}

// WithBaseURL sets the API gateway base URL.
func WithBaseURL(baseURL string) Option {
	return func(rc *runnerConfig) { rc.baseURL = baseURL }
}

// WithOutput sets where human-readable progress is written (default stdout).
func WithOutput(w io.Writer) Option {
	return func(rc *runnerConfig) { rc.out = w }
}

// WithClock replaces the clock used for delays.
func WithClock(clock clockwork.Clock) Option {
	return func(rc *runnerConfig) { rc.clock = clock }
}

// WithDelays overrides the pacing.
func WithDelays(d Delays) Option {
	return func(rc *runnerConfig) {
		rc.delays = d
		rc.delaysSet = true
	}
}

// WithVerifier adds a check run after every probe whose calls succeeded.
func WithVerifier(v probe.Verifier) Option {
	return func(rc *runnerConfig) {
		if v != nil {
			rc.verifiers = append(rc.verifiers, v)
		}
	}
}

// WithInteractive lets probes ask the user questions (category choice).
func WithInteractive(interactive bool) Option {
	return func(rc *runnerConfig) { rc.interactive = interactive }
}

// WithPrompt sets where interactive probes read answers outside the menu.
func WithPrompt(opener prompt.Opener) Option {
	return func(rc *runnerConfig) { rc.prompt = opener }
}

// WithCredentials sets the account used by the login probe.
func WithCredentials(identifier, password string) Option {
	return func(rc *runnerConfig) {
		rc.credentials = api.LoginRequest{Identifier: identifier, Password: password}
		rc.credentialsSet = true
	}
}

// WithSearchTerm sets the term used by both search probes.
func WithSearchTerm(term string) Option {
	return func(rc *runnerConfig) { rc.searchTerm = term }
}

// WithRand sets the random source for generated users and quantities.
func WithRand(r *rand.Rand) Option {
	return func(rc *runnerConfig) { rc.rand = r }
}

// WithRegister includes the register probe in sequential runs.
func WithRegister(include bool) Option {
	return func(rc *runnerConfig) { rc.includeRegister = include }
}
