package shopprobe

import (
	"context"
	"io"

	"pkt.systems/shopprobe/internal/api"
	"pkt.systems/shopprobe/internal/probe"
	"pkt.systems/shopprobe/internal/prompt"
	"pkt.systems/shopprobe/internal/runner"
)

// Public type aliases to the runner and probe packages.
type (
	// Prober runs probes sequentially or from the interactive menu.
	Prober = runner.Prober
	// RunSummary aggregates the results of a sequential run.
	RunSummary = runner.RunSummary
	// Delays are the pauses taken between steps.
	Delays = runner.Delays
	// Result is the outcome of one probe.
	Result = probe.Result
	// Probe describes one catalogue entry.
	Probe = probe.Probe
	// Session is the state successful probes leave behind.
	Session = probe.Session
	// Verifier checks the exchanges of a probe after its calls succeeded.
	Verifier = probe.Verifier
	// Exchange records one request/response pair.
	Exchange = api.Exchange
	// LineReader feeds the interactive menu.
	LineReader = prompt.LineReader
)

// Option tweaks Prober construction.
type Option = runner.Option

var (
	// WithLogger supplies a custom pslog logger.
	WithLogger = runner.WithLogger
	// WithHTTPClient injects a custom HTTP client.
	WithHTTPClient = runner.WithHTTPClient
	// WithTimeout sets the per-request timeout.
	WithTimeout = runner.WithTimeout
	// WithBaseURL points the prober at an API gateway.
	WithBaseURL = runner.WithBaseURL
	// WithOutput redirects human-readable progress.
	WithOutput = runner.WithOutput
	// WithClock replaces the clock used for delays.
	WithClock = runner.WithClock
	// WithDelays overrides warm-up, step and menu pauses.
	WithDelays = runner.WithDelays
	// WithVerifier adds a response check (contract, expectations).
	WithVerifier = runner.WithVerifier
	// WithInteractive lets probes ask questions (category choice).
	WithInteractive = runner.WithInteractive
	// WithPrompt sets where interactive probes read answers outside the menu.
	WithPrompt = runner.WithPrompt
	// WithCredentials sets the login account.
	WithCredentials = runner.WithCredentials
	// WithSearchTerm sets the term for both search probes.
	WithSearchTerm = runner.WithSearchTerm
	// WithRand seeds generated users and quantities.
	WithRand = runner.WithRand
	// WithRegister adds the register probe to sequential runs.
	WithRegister = runner.WithRegister
)

// DefaultDelays returns the stock pacing (3s warm-up, 1s step, 500ms menu).
var DefaultDelays = runner.DefaultDelays

// ErrUnknownProbe is returned by Run for a name outside the catalogue.
var ErrUnknownProbe = runner.ErrUnknownProbe

// New constructs a Prober.
func New(ctx context.Context, opts ...Option) (Prober, error) {
	return runner.New(ctx, opts...)
}

// ProbeNames lists probe names in menu order.
func ProbeNames() []string {
	return probe.Names()
}

// NewLineReader reads menu answers from in and writes prompts to out.
func NewLineReader(in io.Reader, out io.Writer) LineReader {
	return prompt.Open(in, out)
}
