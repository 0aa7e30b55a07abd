package runner

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"pkt.systems/shopprobe/internal/api/apitest"
	"pkt.systems/shopprobe/internal/prompt"
)

type countingReader struct {
	prompt.LineReader
	closes int
}

func (c *countingReader) Close() error {
	c.closes++
	return c.LineReader.Close()
}

func menuInput(lines ...string) *countingReader {
	text := strings.Join(lines, "\n")
	if len(lines) > 0 {
		text += "\n"
	}
	return &countingReader{LineReader: prompt.Open(strings.NewReader(text), io.Discard)}
}

// runMenu runs Menu in the background so a stray delay shows up as a timeout
// instead of a hung test.
func runMenu(t *testing.T, p Prober, in prompt.LineReader) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- p.Menu(context.Background(), in) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("menu: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("menu did not return")
	}
}

func TestMenuExitClosesInputOnce(t *testing.T) {
	srv := apitest.NewServer(t)
	p, out := newTestProber(t, srv.URL, WithClock(clockwork.NewFakeClock()), WithDelays(DefaultDelays()))
	in := menuInput("13")

	runMenu(t, p, in)
	if in.closes != 1 {
		t.Fatalf("input closed %d times", in.closes)
	}
	text := out.String()
	if !strings.Contains(text, "12. Run all probes (sequential)") || !strings.Contains(text, "13. Exit") {
		t.Fatalf("menu options missing: %q", text)
	}
	if !strings.Contains(text, "Leaving menu.") || srv.TotalHits() != 0 {
		t.Fatalf("unexpected exit output %q hits=%d", text, srv.TotalHits())
	}
}

func TestMenuEndOfInputExits(t *testing.T) {
	srv := apitest.NewServer(t)
	p, out := newTestProber(t, srv.URL)
	in := menuInput()

	runMenu(t, p, in)
	if in.closes != 1 || !strings.Contains(out.String(), "Leaving menu.") {
		t.Fatalf("closes=%d output=%q", in.closes, out.String())
	}
}

// Invalid choices redisplay the menu without dispatching or pausing. The fake
// clock is never advanced, so any pause would hang the menu.
func TestMenuInvalidInputRedisplays(t *testing.T) {
	srv := apitest.NewServer(t)
	p, out := newTestProber(t, srv.URL, WithClock(clockwork.NewFakeClock()), WithDelays(DefaultDelays()))

	runMenu(t, p, menuInput("abc", "0", "14", "1.5", "", "13"))
	text := out.String()
	if got := strings.Count(text, "Invalid option, try again."); got != 5 {
		t.Fatalf("expected 5 invalid notices, got %d", got)
	}
	if got := strings.Count(text, "=== INTERACTIVE MENU ==="); got != 6 {
		t.Fatalf("expected menu shown 6 times, got %d", got)
	}
	if srv.TotalHits() != 0 {
		t.Fatalf("invalid input must not dispatch")
	}
}

func TestMenuGuardsBlockDispatch(t *testing.T) {
	srv := apitest.NewServer(t)
	p, out := newTestProber(t, srv.URL)

	runMenu(t, p, menuInput("7", "8", "9", "10", "11", "13"))
	if got := strings.Count(out.String(), guidanceAuth); got != 5 {
		t.Fatalf("expected 5 auth notices, got %d", got)
	}
	if srv.TotalHits() != 0 {
		t.Fatalf("guarded options must not call the service, got %d hits", srv.TotalHits())
	}
}

func TestMenuListGuardAfterLogin(t *testing.T) {
	srv := apitest.NewServer(t)
	p, out := newTestProber(t, srv.URL)

	runMenu(t, p, menuInput("4", "9", "8", "13"))
	if got := strings.Count(out.String(), guidanceList); got != 2 {
		t.Fatalf("expected 2 list notices, got %d", got)
	}
	if srv.Hits("GET /api/lists/{id}") != 0 || srv.Hits("POST /api/lists/{id}/items") != 0 {
		t.Fatalf("list routes must not be called without a list")
	}
}

func TestMenuListFlow(t *testing.T) {
	srv := apitest.NewServer(t)
	p, out := newTestProber(t, srv.URL)

	runMenu(t, p, menuInput("4", "7", "8", "9", "10", "13"))
	sess := p.Session()
	if !sess.HasList() || srv.ListItemCount(sess.ListID) != 3 {
		t.Fatalf("list flow incomplete: %+v", sess)
	}
	if !strings.Contains(out.String(), "- Total lists: 1") {
		t.Fatalf("dashboard output missing: %q", out.String())
	}
}

// Every dispatch, guarded or not, is followed by the menu pause.
func TestMenuPausesAfterDispatch(t *testing.T) {
	srv := apitest.NewServer(t)
	clock := clockwork.NewFakeClock()
	p, _ := newTestProber(t, srv.URL, WithClock(clock), WithDelays(Delays{Menu: 500 * time.Millisecond}))
	in := menuInput("1", "7", "13")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Menu(ctx, in) }()

	for i := 0; i < 2; i++ {
		if err := clock.BlockUntilContext(ctx, 1); err != nil {
			t.Fatalf("pause %d never started: %v", i, err)
		}
		clock.Advance(500 * time.Millisecond)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("menu: %v", err)
		}
	case <-ctx.Done():
		t.Fatalf("menu did not finish")
	}
	if srv.Hits("GET /health") != 1 {
		t.Fatalf("health not dispatched")
	}
}

// Browse borrows the menu input; cancelling returns to the menu without
// closing it.
func TestMenuBrowseSharesInput(t *testing.T) {
	srv := apitest.NewServer(t)
	p, out := newTestProber(t, srv.URL, WithInteractive(true))
	in := menuInput("5", "c", "5", "3", "13")

	runMenu(t, p, in)
	if in.closes != 1 {
		t.Fatalf("input closed %d times", in.closes)
	}
	text := out.String()
	if !strings.Contains(text, "Browsing cancelled by user.") {
		t.Fatalf("cancel not reported: %q", text)
	}
	if !strings.Contains(text, "Items in category Higiene: 1") {
		t.Fatalf("second browse should use Higiene: %q", text)
	}
	if srv.Hits("GET /api/items") != 1 {
		t.Fatalf("items should only be fetched by the second browse")
	}
}

func TestMenuRunAllOption(t *testing.T) {
	srv := apitest.NewServer(t)
	p, out := newTestProber(t, srv.URL)

	runMenu(t, p, menuInput("12", "13"))
	if !strings.Contains(out.String(), "=== Demo finished: 10 passed, 0 failed ===") {
		t.Fatalf("sequential run not triggered: %q", out.String())
	}
}

// An oversized answer is one invalid choice; the menu keeps reading.
func TestMenuOverlongLineIsInvalid(t *testing.T) {
	srv := apitest.NewServer(t)
	p, out := newTestProber(t, srv.URL)

	runMenu(t, p, menuInput(strings.Repeat("x", 70000), "1", "13"))
	text := out.String()
	if got := strings.Count(text, "Invalid option, try again."); got != 1 {
		t.Fatalf("expected 1 invalid notice, got %d", got)
	}
	if srv.Hits("GET /health") != 1 || !strings.Contains(text, "Leaving menu.") {
		t.Fatalf("menu should continue after the long line: hits=%d", srv.Hits("GET /health"))
	}
}

func TestMenuBrowseOverlongLineReprompts(t *testing.T) {
	srv := apitest.NewServer(t)
	p, out := newTestProber(t, srv.URL, WithInteractive(true))

	runMenu(t, p, menuInput("5", strings.Repeat("9", 70000), "3", "13"))
	text := out.String()
	if got := strings.Count(text, "Invalid option, enter the number shown next to a category."); got != 1 {
		t.Fatalf("expected 1 invalid category notice, got %d", got)
	}
	if !strings.Contains(text, "Items in category Higiene: 1") {
		t.Fatalf("browse should recover after the long line: %q", text)
	}
}
