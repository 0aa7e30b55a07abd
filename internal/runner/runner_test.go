package runner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"pkt.systems/pslog"
	"pkt.systems/shopprobe/internal/api/apitest"
	"pkt.systems/shopprobe/internal/probe"
)

func newTestProber(t *testing.T, baseURL string, opts ...Option) (Prober, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	base := []Option{
		WithBaseURL(baseURL),
		WithOutput(out),
		WithLogger(pslog.New(io.Discard)),
		WithDelays(Delays{}),
		WithRand(rand.New(rand.NewPCG(7, 11))),
	}
	p, err := New(context.Background(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return p, out
}

// A clean run passes every probe and leaves a list behind.
func TestRunAllHappyPath(t *testing.T) {
	srv := apitest.NewServer(t)
	p, out := newTestProber(t, srv.URL)

	sum, err := p.RunAll(context.Background())
	if err != nil {
		t.Fatalf("run all: %v", err)
	}
	if sum.Total != 10 || sum.Passed != 10 || sum.Failed != 0 {
		for _, r := range sum.Results {
			if !r.Passed {
				t.Logf("probe %s failed: %s", r.Probe, r.ErrorText)
			}
		}
		t.Fatalf("unexpected summary total=%d passed=%d failed=%d", sum.Total, sum.Passed, sum.Failed)
	}
	if srv.Hits("POST /api/auth/register") != 0 {
		t.Fatalf("register should not run by default")
	}
	sess := p.Session()
	if !sess.Authenticated() || !sess.HasList() {
		t.Fatalf("session incomplete: %+v", sess)
	}
	if got := srv.ListItemCount(sess.ListID); got != 3 {
		t.Fatalf("expected 3 items on the list, got %d", got)
	}
	text := out.String()
	for _, want := range []string{
		"curl " + srv.URL + "/health",
		"curl " + srv.URL + "/registry",
		"curl " + srv.URL + "/\n",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("missing hint %q in output", want)
		}
	}
}

func TestRunAllIncludesRegisterWhenAsked(t *testing.T) {
	srv := apitest.NewServer(t)
	p, _ := newTestProber(t, srv.URL, WithRegister(true))

	sum, err := p.RunAll(context.Background())
	if err != nil {
		t.Fatalf("run all: %v", err)
	}
	if sum.Total != 11 || sum.Results[2].Probe != probe.Register {
		t.Fatalf("expected register as third of 11 probes, got %d results", sum.Total)
	}
	if srv.Hits("POST /api/auth/register") != 1 {
		t.Fatalf("register not called")
	}
}

// Failures never stop the run: every planned probe still gets a result.
func TestRunAllContinuesAfterFailures(t *testing.T) {
	srv := apitest.NewServer(t)
	srv.Fail("GET /health", http.StatusServiceUnavailable)
	srv.Fail("POST /api/auth/login", http.StatusInternalServerError)
	p, out := newTestProber(t, srv.URL)

	sum, err := p.RunAll(context.Background())
	if err != nil {
		t.Fatalf("run all: %v", err)
	}
	if sum.Total != 10 || sum.Passed != 3 || sum.Failed != 7 {
		t.Fatalf("unexpected summary total=%d passed=%d failed=%d", sum.Total, sum.Passed, sum.Failed)
	}
	if got := strings.Count(out.String(), "Probe failed, continuing with next..."); got != 7 {
		t.Fatalf("expected 7 continuation lines, got %d", got)
	}
	for _, r := range sum.Results {
		if r.Probe == probe.CreateList && !errors.Is(r.Err, probe.ErrNotAuthenticated) {
			t.Fatalf("create-list should fail on the missing token, got %v", r.Err)
		}
	}
	if srv.Hits("POST /api/lists") != 0 || srv.Hits("GET /api/dashboard") != 0 {
		t.Fatalf("authenticated routes must not be called without a token")
	}
}

// If the gateway is unreachable every probe fails with an informative error.
func TestRunAllConnectionError(t *testing.T) {
	p, _ := newTestProber(t, "http://127.0.0.1:1")

	sum, err := p.RunAll(context.Background())
	if err != nil {
		t.Fatalf("run all: %v", err)
	}
	if sum.Failed != sum.Total || sum.Total != 10 {
		t.Fatalf("expected all 10 probes to fail, got failed=%d total=%d", sum.Failed, sum.Total)
	}
	if got := sum.Results[0].ErrorText; !strings.Contains(got, "http request failed") {
		t.Fatalf("expected connection error text, got %q", got)
	}
}

// Warm-up comes first, then exactly one step delay per probe.
func TestRunAllPacing(t *testing.T) {
	srv := apitest.NewServer(t)
	clock := clockwork.NewFakeClock()
	delays := Delays{Warmup: 3 * time.Second, Step: time.Second, Menu: 500 * time.Millisecond}
	p, _ := newTestProber(t, srv.URL, WithClock(clock), WithDelays(delays))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	type outcome struct {
		sum RunSummary
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		sum, err := p.RunAll(ctx)
		done <- outcome{sum, err}
	}()

	steps := []time.Duration{delays.Warmup}
	for range probe.SequentialPlan(false) {
		steps = append(steps, delays.Step)
	}
	for i, d := range steps {
		if err := clock.BlockUntilContext(ctx, 1); err != nil {
			t.Fatalf("delay %d never started: %v", i, err)
		}
		if i == 0 && srv.TotalHits() != 0 {
			t.Fatalf("probes started before the warm-up elapsed")
		}
		clock.Advance(d)
	}

	select {
	case res := <-done:
		if res.err != nil {
			t.Fatalf("run all: %v", res.err)
		}
		if res.sum.TotalElapsed != 3*time.Second+10*time.Second {
			t.Fatalf("unexpected elapsed %s", res.sum.TotalElapsed)
		}
	case <-ctx.Done():
		t.Fatalf("run did not finish after %d delays", len(steps))
	}
}

// Failing steps are paced exactly like passing ones.
func TestRunAllPacingWithFailures(t *testing.T) {
	srv := apitest.NewServer(t)
	srv.Fail("GET /registry", http.StatusBadGateway)
	srv.Fail("GET /api/items/search", http.StatusInternalServerError)
	srv.Fail("GET /api/dashboard", http.StatusServiceUnavailable)
	clock := clockwork.NewFakeClock()
	delays := Delays{Warmup: 3 * time.Second, Step: time.Second}
	p, out := newTestProber(t, srv.URL, WithClock(clock), WithDelays(delays))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	type outcome struct {
		sum RunSummary
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		sum, err := p.RunAll(ctx)
		done <- outcome{sum, err}
	}()

	plan := probe.SequentialPlan(false)
	for i := 0; i <= len(plan); i++ {
		if err := clock.BlockUntilContext(ctx, 1); err != nil {
			t.Fatalf("delay %d never started: %v", i, err)
		}
		if i == 0 {
			clock.Advance(delays.Warmup)
			continue
		}
		clock.Advance(delays.Step)
	}

	var res outcome
	select {
	case res = <-done:
	case <-ctx.Done():
		t.Fatalf("run did not finish after %d step delays", len(plan))
	}
	if res.err != nil {
		t.Fatalf("run all: %v", res.err)
	}
	want := []bool{true, false, true, true, false, true, true, true, false, true}
	if len(res.sum.Results) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(res.sum.Results))
	}
	for i, r := range res.sum.Results {
		if r.Passed != want[i] {
			t.Fatalf("result %d (%s) passed=%v, want %v", i, r.Probe, r.Passed, want[i])
		}
	}
	if res.sum.TotalElapsed != delays.Warmup+time.Duration(len(plan))*delays.Step {
		t.Fatalf("unexpected elapsed %s", res.sum.TotalElapsed)
	}
	if got := strings.Count(out.String(), "Probe failed, continuing with next..."); got != 3 {
		t.Fatalf("expected 3 continuation lines, got %d", got)
	}
}

func TestRunAllStopsOnCancel(t *testing.T) {
	srv := apitest.NewServer(t)
	p, _ := newTestProber(t, srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := p.RunAll(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if sum.Total != 0 || srv.TotalHits() != 0 {
		t.Fatalf("nothing should run after cancel")
	}
}

func TestRunSingleProbe(t *testing.T) {
	srv := apitest.NewServer(t)
	p, _ := newTestProber(t, srv.URL)

	res, err := p.Run(context.Background(), probe.Health)
	if err != nil || !res.Passed {
		t.Fatalf("health: res=%+v err=%v", res, err)
	}
	if _, err := p.Run(context.Background(), "checkout"); !errors.Is(err, ErrUnknownProbe) {
		t.Fatalf("expected ErrUnknownProbe, got %v", err)
	}
	if len(p.Probes()) != 11 {
		t.Fatalf("expected 11 probes")
	}
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	if _, err := New(context.Background(), WithBaseURL("ftp://shop")); err == nil {
		t.Fatalf("expected error for non-http base url")
	}
}
