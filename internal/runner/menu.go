package runner

import (
	"context"
	"errors"
	"fmt"
	"io"

	"pkt.systems/shopprobe/internal/probe"
	"pkt.systems/shopprobe/internal/prompt"
)

const (
	guidanceAuth = "Action requires authentication. Log in or register a user first."
	guidanceList = "No list created. Run \"Create list\" first."
)

// Menu shows the numbered menu until the user picks Exit or input ends.
// in is closed exactly once before Menu returns, and interactive probes
// borrow it while the menu runs.
func (r *runner) Menu(ctx context.Context, in prompt.LineReader) (err error) {
	if in == nil {
		return errors.New("nil line reader")
	}
	defer func() {
		if cerr := in.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close input: %w", cerr)
		}
	}()

	saved := r.env.Prompt
	r.env.Prompt = prompt.Shared(in)
	defer func() { r.env.Prompt = saved }()

	runAll := len(r.probes) + 1
	exit := len(r.probes) + 2

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.printMenu()
		line, err := in.ReadLine("\nChoose an option (number): ")
		if errors.Is(err, io.EOF) {
			r.printf("\n")
			break
		}
		if err != nil {
			return fmt.Errorf("read menu choice: %w", err)
		}
		choice, ok := prompt.ParseChoice(line, exit)
		if !ok {
			r.printf("Invalid option, try again.\n")
			continue
		}
		if choice == exit {
			break
		}

		if choice == runAll {
			if _, err := r.RunAll(ctx); err != nil {
				return err
			}
		} else {
			r.dispatch(ctx, r.probes[choice-1])
		}
		if err := r.sleep(ctx, r.delays.Menu); err != nil {
			return err
		}
	}
	r.printf("Leaving menu.\n")
	return nil
}

// dispatch runs p when the session allows it and prints guidance otherwise.
func (r *runner) dispatch(ctx context.Context, p probe.Probe) {
	switch err := p.Needs.Check(r.env.Session); {
	case errors.Is(err, probe.ErrNotAuthenticated):
		r.printf("%s\n", guidanceAuth)
	case errors.Is(err, probe.ErrNoActiveList):
		r.printf("%s\n", guidanceList)
	default:
		probe.Execute(ctx, p, r.env)
	}
}

func (r *runner) printMenu() {
	r.printf("\n=== INTERACTIVE MENU ===\n")
	for i, p := range r.probes {
		r.printf("%d. %s\n", i+1, p.Title)
	}
	r.printf("%d. Run all probes (sequential)\n", len(r.probes)+1)
	r.printf("%d. Exit\n", len(r.probes)+2)
}
