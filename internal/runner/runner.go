package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"pkt.systems/pslog"
	"pkt.systems/shopprobe/internal/api"
	"pkt.systems/shopprobe/internal/probe"
	"pkt.systems/shopprobe/internal/prompt"
)

const (
	defaultTimeout    = 15 * time.Second
	defaultBaseURL    = "http://localhost:3000"
	defaultSearchTerm = "arroz"
	defaultIdentifier = "admin@microservices.com"
	defaultPassword   = "admin123"
)

// ErrUnknownProbe is returned by Run for a name outside the catalogue.
var ErrUnknownProbe = errors.New("unknown probe")

// runner implements Prober.
type runner struct {
	logger          pslog.Base
	out             io.Writer
	clock           clockwork.Clock
	delays          Delays
	includeRegister bool
	baseURL         string
	probes          []probe.Probe
	env             *probe.Env
}

type runnerConfig struct {
	logger          pslog.Base
	httpClient      *http.Client
	timeout         time.Duration
	baseURL         string
	out             io.Writer
	clock           clockwork.Clock
	delays          Delays
	delaysSet       bool
	verifiers       []probe.Verifier
	interactive     bool
	prompt          prompt.Opener
	credentials     api.LoginRequest
	credentialsSet  bool
	searchTerm      string
	rand            *rand.Rand
	includeRegister bool
}

// New constructs a Prober with optional configuration.
func New(ctx context.Context, opts ...Option) (Prober, error) {
	if ctx == nil {
		return nil, errors.New("nil context")
	}
	cfg := runnerConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = pslog.New(os.Stderr)
	}
	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if cfg.timeout == 0 {
		cfg.timeout = defaultTimeout
	}
	if cfg.baseURL == "" {
		cfg.baseURL = defaultBaseURL
	}
	if cfg.out == nil {
		cfg.out = os.Stdout
	}
	if cfg.clock == nil {
		cfg.clock = clockwork.NewRealClock()
	}
	if !cfg.delaysSet {
		cfg.delays = DefaultDelays()
	}
	if !cfg.credentialsSet {
		cfg.credentials = api.LoginRequest{Identifier: defaultIdentifier, Password: defaultPassword}
	}
	if cfg.searchTerm == "" {
		cfg.searchTerm = defaultSearchTerm
	}
	if cfg.prompt == nil {
		cfg.prompt = prompt.Stdin(os.Stdin, cfg.out)
	}

	client, err := api.New(cfg.baseURL,
		api.WithHTTPClient(cfg.httpClient),
		api.WithTimeout(cfg.timeout),
		api.WithLogger(cfg.logger),
	)
	if err != nil {
		return nil, err
	}
	r := &runner{
		logger:          cfg.logger,
		out:             cfg.out,
		clock:           cfg.clock,
		delays:          cfg.delays,
		includeRegister: cfg.includeRegister,
		baseURL:         client.BaseURL(),
		probes:          probe.Catalog(),
		env: &probe.Env{
			Client:      client,
			Session:     &probe.Session{},
			Out:         cfg.out,
			Logger:      cfg.logger,
			Prompt:      cfg.prompt,
			Interactive: cfg.interactive,
			Rand:        cfg.rand,
			SearchTerm:  cfg.searchTerm,
			Credentials: cfg.credentials,
			Verifiers:   cfg.verifiers,
		},
	}
	return r, nil
}

// Probes returns the catalogue in menu order.
func (r *runner) Probes() []probe.Probe {
	return append([]probe.Probe(nil), r.probes...)
}

// Session returns a copy of the current session.
func (r *runner) Session() probe.Session {
	return *r.env.Session
}

// Run executes one probe. Only an unknown name is an error; probe failures
// are reported in the Result.
func (r *runner) Run(ctx context.Context, name string) (probe.Result, error) {
	p, ok := probe.Lookup(name)
	if !ok {
		return probe.Result{}, fmt.Errorf("%w %q (known: %v)", ErrUnknownProbe, name, probe.Names())
	}
	return probe.Execute(ctx, p, r.env), nil
}

// RunAll runs the sequential plan. A failing probe never stops the run; only
// context cancellation does, in which case the partial summary is returned
// with ctx.Err().
func (r *runner) RunAll(ctx context.Context) (RunSummary, error) {
	start := r.clock.Now()
	summary := RunSummary{BaseURL: r.baseURL}
	plan := probe.SequentialPlan(r.includeRegister)

	r.printf("Starting shopping list API demo against %s...\n\n", r.baseURL)
	r.printf("Waiting for services to start...\n")
	if err := r.sleep(ctx, r.delays.Warmup); err != nil {
		summary.TotalElapsed = r.clock.Since(start)
		return summary, err
	}

	for _, p := range plan {
		res := probe.Execute(ctx, p, r.env)
		summary.add(res)
		if res.Failed() {
			r.printf("Probe failed, continuing with next...\n")
		}
		if err := r.sleep(ctx, r.delays.Step); err != nil {
			summary.TotalElapsed = r.clock.Since(start)
			return summary, err
		}
	}
	summary.TotalElapsed = r.clock.Since(start)

	r.printf("\n=== Demo finished: %d passed, %d failed ===\n", summary.Passed, summary.Failed)
	r.printf("To test manually:\n")
	r.printf("- Health check: curl %s/health\n", r.baseURL)
	r.printf("- Service registry: curl %s/registry\n", r.baseURL)
	r.printf("- API gateway: curl %s/\n", r.baseURL)
	r.logger.Info("run finished", "passed", summary.Passed, "failed", summary.Failed, "total", summary.Total)
	return summary, nil
}

func (r *runner) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.clock.After(d):
		return nil
	}
}

func (r *runner) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}
