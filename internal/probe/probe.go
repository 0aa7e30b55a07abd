// Package probe holds the fixed set of API probes and the boundary that turns
// every probe failure into a Result instead of an aborted run.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/shopprobe/internal/api"
	"pkt.systems/shopprobe/internal/prompt"
)

// Probe names.
const (
	Health       = "health"
	Registry     = "registry"
	Register     = "register"
	Login        = "login"
	Browse       = "browse"
	Search       = "search"
	CreateList   = "create-list"
	AddItems     = "add-items"
	ViewList     = "view-list"
	Dashboard    = "dashboard"
	GlobalSearch = "global-search"
)

// Requirement is a set of session preconditions.
type Requirement uint8

const (
	NeedsAuth Requirement = 1 << iota
	NeedsList
)

// Has reports whether all bits of x are set.
func (r Requirement) Has(x Requirement) bool { return r&x == x }

func (r Requirement) String() string {
	var parts []string
	if r.Has(NeedsAuth) {
		parts = append(parts, "auth")
	}
	if r.Has(NeedsList) {
		parts = append(parts, "list")
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ",")
}

// Check returns the first unmet precondition, or nil.
func (r Requirement) Check(s *Session) error {
	if r.Has(NeedsAuth) && !s.Authenticated() {
		return ErrNotAuthenticated
	}
	if r.Has(NeedsList) && !s.HasList() {
		return ErrNoActiveList
	}
	return nil
}

// Probe is one named operation against the service.
type Probe struct {
	Name  string
	Title string
	Needs Requirement
	run   func(ctx context.Context, inv *invocation) error
}

// Verifier inspects the exchanges of a probe after its calls succeeded.
type Verifier interface {
	Verify(ctx context.Context, probe string, exchanges []api.Exchange) error
}

// Env is everything a probe reads. Session is mutated in place, and only by
// probes that pass.
type Env struct {
	Client      *api.Client
	Session     *Session
	Out         io.Writer
	Logger      pslog.Base
	Prompt      prompt.Opener
	Interactive bool
	Rand        *rand.Rand
	SearchTerm  string
	Credentials api.LoginRequest
	Verifiers   []Verifier
}

type invocation struct {
	*Env
	client *api.Client
	sess   *Session
}

func (inv *invocation) intN(n int) int {
	if inv.Rand != nil {
		return inv.Rand.IntN(n)
	}
	return rand.IntN(n)
}

func (inv *invocation) printf(format string, args ...any) {
	fmt.Fprintf(inv.Out, format, args...)
}

// Execute runs p against env and never returns an error: transport failures,
// error statuses, decode problems, unmet preconditions and verifier failures
// all end up in the Result.
func Execute(ctx context.Context, p Probe, env *Env) Result {
	if env.Out == nil {
		env.Out = io.Discard
	}
	if env.Logger == nil {
		env.Logger = pslog.New(io.Discard)
	}
	if env.Session == nil {
		env.Session = &Session{}
	}

	res := Result{Probe: p.Name, Title: p.Title}
	fmt.Fprintf(env.Out, "\n=== %s ===\n", p.Title)

	start := time.Now()
	err := p.Needs.Check(env.Session)
	if err == nil {
		rec := &api.Recorder{}
		staged := *env.Session
		inv := &invocation{Env: env, client: env.Client.WithObserver(rec.Observe), sess: &staged}
		err = p.run(ctx, inv)
		if err == nil {
			err = env.verify(ctx, p.Name, rec.Exchanges())
		}
		if err == nil {
			*env.Session = staged
		}
		res.Exchanges = rec.Exchanges()
	}
	res.Duration = time.Since(start)

	if err != nil {
		res.Err = err
		res.ErrorText = err.Error()
		env.logFailure(p, err)
		return res
	}
	res.Passed = true
	env.Logger.Debug("probe passed", "probe", p.Name, "dur", res.Duration.String())
	return res
}

func (env *Env) verify(ctx context.Context, name string, exchanges []api.Exchange) error {
	var errs []error
	for _, v := range env.Verifiers {
		if v == nil {
			continue
		}
		if err := v.Verify(ctx, name, exchanges); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return &CheckError{Probe: name, Err: errors.Join(errs...)}
}

func (env *Env) logFailure(p Probe, err error) {
	if errors.Is(err, ErrCancelled) {
		env.Logger.Info("probe cancelled", "probe", p.Name)
		return
	}
	keyvals := []any{"probe", p.Name, "err", err.Error()}
	var serr *api.StatusError
	if errors.As(err, &serr) {
		keyvals = append(keyvals, "status", serr.Status, "detail", serr.Detail())
	}
	env.Logger.Error("probe failed", keyvals...)
}

// Catalog returns every probe in menu order.
func Catalog() []Probe {
	return []Probe{
		{Name: Health, Title: "Health check", run: runHealth},
		{Name: Registry, Title: "Service registry", run: runRegistry},
		{Name: Register, Title: "Register new user", run: runRegister},
		{Name: Login, Title: "Log in (admin)", run: runLogin},
		{Name: Browse, Title: "Browse items", run: runBrowse},
		{Name: Search, Title: "Search items", run: runSearch},
		{Name: CreateList, Title: "Create list", Needs: NeedsAuth, run: runCreateList},
		{Name: AddItems, Title: "Add items to list", Needs: NeedsAuth | NeedsList, run: runAddItems},
		{Name: ViewList, Title: "View list", Needs: NeedsAuth | NeedsList, run: runViewList},
		{Name: Dashboard, Title: "Dashboard", Needs: NeedsAuth, run: runDashboard},
		{Name: GlobalSearch, Title: "Global search", Needs: NeedsAuth, run: runGlobalSearch},
	}
}

// Lookup finds a probe by name.
func Lookup(name string) (Probe, bool) {
	for _, p := range Catalog() {
		if p.Name == name {
			return p, true
		}
	}
	return Probe{}, false
}

// Names lists probe names in menu order.
func Names() []string {
	cat := Catalog()
	out := make([]string, len(cat))
	for i, p := range cat {
		out[i] = p.Name
	}
	return out
}

// SequentialPlan is the order used for a full run. Registration is left out
// unless asked for, so repeated demo runs log in with the fixed account
// instead of creating throwaway users.
func SequentialPlan(includeRegister bool) []Probe {
	var plan []Probe
	for _, p := range Catalog() {
		if p.Name == Register && !includeRegister {
			continue
		}
		plan = append(plan, p)
	}
	return plan
}
