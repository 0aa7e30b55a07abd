// Package expect runs user-supplied JavaScript checks against probe
// responses.
//
// A script registers checks per probe:
//
//	check("health", "gateway is healthy", function (res) {
//	  expect(res.status).to.equal(200);
//	  return res.body.status === "healthy";
//	});
//
// A check fails when it throws or returns false. res describes the last
// exchange of the probe (status, method, path, route, url, requestId,
// headers, body, durationMs) and res.exchanges lists every exchange.
package expect

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/dop251/goja"
	"pkt.systems/pslog"
	"pkt.systems/shopprobe/internal/api"
)

const defaultTimeout = 5 * time.Second

// Suite is a compiled expectation script.
type Suite struct {
	name    string
	program *goja.Program
	counts  map[string]int
	logger  pslog.Base
	timeout time.Duration
}

// Option configures a Suite.
type Option func(*Suite)

// WithLogger sets the logger receiving console.log lines.
func WithLogger(logger pslog.Base) Option {
	return func(s *Suite) { s.logger = logger }
}

// WithTimeout bounds how long one probe's checks may run.
func WithTimeout(d time.Duration) Option {
	return func(s *Suite) { s.timeout = d }
}

// WithKnownProbes rejects scripts that register checks for other names.
func WithKnownProbes(names ...string) Option {
	return func(s *Suite) {
		for _, n := range names {
			s.counts[n] = 0
		}
	}
}

// Load compiles the script at path.
func Load(path string, opts ...Option) (*Suite, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read expectations: %w", err)
	}
	return Parse(path, string(src), opts...)
}

// Parse compiles src. name is used in error positions.
func Parse(name, src string, opts ...Option) (*Suite, error) {
	prog, err := goja.Compile(name, src, true)
	if err != nil {
		return nil, fmt.Errorf("compile expectations: %w", err)
	}
	s := &Suite{name: name, program: prog, counts: map[string]int{}}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	restrict := len(s.counts) > 0
	if s.logger == nil {
		s.logger = pslog.New(os.Stderr)
	}
	if s.timeout <= 0 {
		s.timeout = defaultTimeout
	}

	// Dry run to learn which probes have checks.
	var unknown []string
	vm := goja.New()
	release := s.guard(context.Background(), vm)
	err = s.run(vm, func(probe, _ string, _ goja.Callable) {
		if _, ok := s.counts[probe]; restrict && !ok {
			unknown = append(unknown, probe)
			return
		}
		s.counts[probe]++
	})
	release()
	if err != nil {
		return nil, fmt.Errorf("load expectations: %w", err)
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%s: checks for unknown probes: %s", s.name, strings.Join(unknown, ", "))
	}
	return s, nil
}

// Checks returns how many checks are registered for probe.
func (s *Suite) Checks(probe string) int {
	return s.counts[probe]
}

// Probes lists the probes that have at least one check.
func (s *Suite) Probes() []string {
	var out []string
	for name, n := range s.counts {
		if n > 0 {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

type check struct {
	desc string
	fn   goja.Callable
}

// Verify runs the checks registered for probe in a fresh runtime.
func (s *Suite) Verify(ctx context.Context, probe string, exchanges []api.Exchange) error {
	if s.counts[probe] == 0 {
		return nil
	}
	var checks []check
	vm := goja.New()
	defer s.guard(ctx, vm)()
	err := s.run(vm, func(name, desc string, fn goja.Callable) {
		if name == probe {
			checks = append(checks, check{desc: desc, fn: fn})
		}
	})
	if err != nil {
		return err
	}

	res := responseValue(vm, exchanges)
	var errs []error
	for _, c := range checks {
		out, err := c.fn(goja.Undefined(), res)
		switch {
		case err != nil:
			var ierr *goja.InterruptedError
			if errors.As(err, &ierr) {
				return fmt.Errorf("expectations interrupted: %v", ierr.Value())
			}
			errs = append(errs, fmt.Errorf("%s: %s", c.desc, jsErrorText(err)))
		case out != nil && out.StrictEquals(vm.ToValue(false)):
			errs = append(errs, fmt.Errorf("%s: returned false", c.desc))
		default:
			s.logger.Debug("expect.pass", "probe", probe, "check", c.desc)
		}
	}
	return errors.Join(errs...)
}

// guard interrupts vm when ctx ends or the timeout passes. The returned func
// disarms both.
func (s *Suite) guard(ctx context.Context, vm *goja.Runtime) func() {
	stop := context.AfterFunc(ctx, func() { vm.Interrupt(ctx.Err()) })
	timer := time.AfterFunc(s.timeout, func() { vm.Interrupt("timeout") })
	return func() {
		stop()
		timer.Stop()
	}
}

// run executes the program on vm with check and expect installed.
func (s *Suite) run(vm *goja.Runtime, register func(probe, desc string, fn goja.Callable)) error {
	registerConsole(vm, s.logger)
	vm.Set("expect", func(call goja.FunctionCall) goja.Value {
		return newChain(vm, call.Argument(0))
	})
	vm.Set("check", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 3 {
			panic(vm.NewGoError(errors.New("check(probe, description, fn) requires 3 args")))
		}
		fn, ok := goja.AssertFunction(call.Arguments[2])
		if !ok {
			panic(vm.NewGoError(errors.New("third arg of check must be a function")))
		}
		register(call.Arguments[0].String(), call.Arguments[1].String(), fn)
		return goja.Undefined()
	})
	_, err := vm.RunProgram(s.program)
	return err
}

func registerConsole(vm *goja.Runtime, logger pslog.Base) {
	console := vm.NewObject()
	console.Set("log", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		logger.Debug("js", "msg", strings.Join(parts, " "))
		return goja.Undefined()
	})
	vm.Set("console", console)
}

func responseValue(vm *goja.Runtime, exchanges []api.Exchange) goja.Value {
	all := make([]any, len(exchanges))
	for i, ex := range exchanges {
		all[i] = exchangeObject(vm, ex)
	}
	var res *goja.Object
	if len(exchanges) > 0 {
		res = exchangeObject(vm, exchanges[len(exchanges)-1])
	} else {
		res = vm.NewObject()
	}
	res.Set("exchanges", vm.NewArray(all...))
	return res
}

func exchangeObject(vm *goja.Runtime, ex api.Exchange) *goja.Object {
	obj := vm.NewObject()
	obj.Set("status", ex.Status)
	obj.Set("method", ex.Method)
	obj.Set("path", ex.Path)
	obj.Set("route", ex.Route)
	obj.Set("url", ex.URL)
	obj.Set("requestId", ex.RequestID)
	obj.Set("durationMs", ex.Duration.Milliseconds())
	headers := vm.NewObject()
	for k, v := range ex.ResponseHeaders {
		headers.Set(k, v)
	}
	obj.Set("headers", headers)
	obj.Set("body", parseBody(vm, ex.Body))
	return obj
}

// parseBody turns JSON bodies into native JS values and leaves anything else
// as a string.
func parseBody(vm *goja.Runtime, body []byte) goja.Value {
	if len(body) == 0 {
		return goja.Null()
	}
	parse, ok := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("parse"))
	if !ok {
		return vm.ToValue(string(body))
	}
	v, err := parse(goja.Undefined(), vm.ToValue(string(body)))
	if err != nil {
		return vm.ToValue(string(body))
	}
	return v
}

func jsErrorText(err error) string {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return ex.Value().String()
	}
	return err.Error()
}
