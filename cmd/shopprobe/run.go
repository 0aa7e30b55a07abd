package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"pkt.systems/pslog"
	"pkt.systems/shopprobe"
	"pkt.systems/shopprobe/internal/config"
	"pkt.systems/shopprobe/internal/contract"
	"pkt.systems/shopprobe/internal/expect"
	"pkt.systems/shopprobe/internal/probe"
	"pkt.systems/shopprobe/internal/prompt"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run every probe in order, continuing past failures",
		Args:  cobra.NoArgs,
		RunE:  runE,
	}
}

func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe <name>",
		Short: "Run a single probe",
		Long:  "Run a single probe once. Probes that need a login or a list fail their precondition check in a fresh session.",
		Args:  cobra.ExactArgs(1),
		RunE:  probeE,
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the probe catalogue",
		Args:  cobra.NoArgs,
		RunE:  listE,
	}
}

func newLogger(structured bool, level string, flagSet bool, caller bool, w io.Writer) (pslog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}

	opts := pslog.Options{CallerKeyval: caller}
	if structured {
		opts.Mode = pslog.ModeStructured
	}
	logger := pslog.NewWithOptions(w, opts).LogLevel(pslog.InfoLevel)

	if flagSet {
		if lvl, ok := pslog.ParseLevel(level); ok {
			return logger.LogLevel(lvl), nil
		}
		return nil, fmt.Errorf("unknown level %q", level)
	}

	if lvl, ok := pslog.LevelFromEnv("LOG_LEVEL"); ok {
		return logger.LogLevel(lvl), nil
	}
	if lvl, ok := pslog.ParseLevel(level); ok {
		return logger.LogLevel(lvl), nil
	}
	return logger, nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path, cmd.Flags())
}

// newProber wires configuration, transport and verifiers into a Prober.
func newProber(cmd *cobra.Command, cfg *config.Config, logger pslog.Logger, extra ...shopprobe.Option) (shopprobe.Prober, error) {
	ctx := cmd.Context()
	httpClient, err := buildHTTPClient(cfg.Insecure, cfg.CACert, cfg.NoProxy, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("http client: %w", err)
	}

	opts := []shopprobe.Option{
		shopprobe.WithLogger(logger),
		shopprobe.WithHTTPClient(httpClient),
		shopprobe.WithTimeout(cfg.Timeout),
		shopprobe.WithBaseURL(cfg.BaseURL),
		shopprobe.WithOutput(cmd.OutOrStdout()),
		shopprobe.WithDelays(shopprobe.Delays{Warmup: cfg.Warmup, Step: cfg.StepDelay, Menu: cfg.MenuDelay}),
		shopprobe.WithCredentials(cfg.Login.Identifier, cfg.Login.Password),
		shopprobe.WithSearchTerm(cfg.SearchTerm),
		shopprobe.WithRegister(cfg.IncludeRegister),
		shopprobe.WithPrompt(prompt.Stdin(cmd.InOrStdin(), cmd.OutOrStdout())),
		shopprobe.WithInteractive(isTerminal(cmd.InOrStdin())),
	}
	if cfg.OpenAPI != "" {
		v, err := contract.Load(ctx, cfg.OpenAPI, contract.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		opts = append(opts, shopprobe.WithVerifier(v))
	}
	if cfg.Expect != "" {
		s, err := expect.Load(cfg.Expect, expect.WithLogger(logger), expect.WithKnownProbes(probe.Names()...))
		if err != nil {
			return nil, err
		}
		logger.Debug("expectations loaded", "path", cfg.Expect, "probes", s.Probes())
		opts = append(opts, shopprobe.WithVerifier(s))
	}
	return shopprobe.New(ctx, append(opts, extra...)...)
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && prompt.IsTerminal(f)
}

func menuE(cmd *cobra.Command, args []string) error {
	logger := loggerFromCmd(cmd)
	cfg, err := loadConfig(cmd)
	if err != nil {
		logger.Fatal("config", "err", err)
		return nil
	}
	p, err := newProber(cmd, cfg, logger)
	if err != nil {
		logger.Fatal("init", "err", err)
		return nil
	}
	err = p.Menu(cmd.Context(), shopprobe.NewLineReader(cmd.InOrStdin(), cmd.OutOrStdout()))
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("menu", "err", err)
	}
	return nil
}

func runE(cmd *cobra.Command, args []string) error {
	logger := loggerFromCmd(cmd)
	cfg, err := loadConfig(cmd)
	if err != nil {
		logger.Fatal("config", "err", err)
		return nil
	}
	p, err := newProber(cmd, cfg, logger)
	if err != nil {
		logger.Fatal("init", "err", err)
		return nil
	}

	summary, err := p.RunAll(cmd.Context())
	if cfg.Report.Path != "" {
		if werr := shopprobe.WriteReport(cfg.Report.Format, cfg.Report.Path, summary); werr != nil {
			logger.Fatal("report", "path", cfg.Report.Path, "err", werr)
			return nil
		}
		logger.Info("report written", "path", cfg.Report.Path, "format", cfg.Report.Format)
	}
	if err != nil {
		logger.Fatal("run interrupted", "err", err, "completed", summary.Total)
		return nil
	}
	printSummary(summary, logger)
	if summary.Failed > 0 {
		logger.Fatal("probes failed", "count", summary.Failed)
	}
	return nil
}

func probeE(cmd *cobra.Command, args []string) error {
	logger := loggerFromCmd(cmd)
	cfg, err := loadConfig(cmd)
	if err != nil {
		logger.Fatal("config", "err", err)
		return nil
	}
	p, err := newProber(cmd, cfg, logger)
	if err != nil {
		logger.Fatal("init", "err", err)
		return nil
	}
	res, err := p.Run(cmd.Context(), args[0])
	if errors.Is(err, shopprobe.ErrUnknownProbe) {
		return err
	}
	if err != nil {
		logger.Fatal("probe", "name", args[0], "err", err)
		return nil
	}
	printSingle(res, logger)
	if !res.Passed {
		logger.Fatal("probe failed", "name", res.Probe)
	}
	return nil
}

func listE(cmd *cobra.Command, args []string) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTITLE\tNEEDS")
	for _, p := range probe.Catalog() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Name, p.Title, p.Needs)
	}
	return tw.Flush()
}

func buildHTTPClient(insecure bool, cacert string, noProxy bool, timeout time.Duration) (*http.Client, error) {
	tlsConfig := &tls.Config{InsecureSkipVerify: insecure} //nolint:gosec // user opted in

	if cacert != "" {
		pemData, err := os.ReadFile(cacert)
		if err != nil {
			return nil, fmt.Errorf("read cacert: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil {
			pool = x509.NewCertPool()
		}
		if ok := pool.AppendCertsFromPEM(pemData); !ok {
			return nil, fmt.Errorf("failed to append CA cert")
		}
		tlsConfig.RootCAs = pool
	}

	tr := &http.Transport{
		TLSClientConfig: tlsConfig,
	}
	if !noProxy {
		tr.Proxy = http.ProxyFromEnvironment
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{Transport: tr, Timeout: timeout}, nil
}

func printSummary(sum shopprobe.RunSummary, logger pslog.Base) {
	for _, r := range sum.Results {
		printSingle(r, logger)
	}
	logger.Info("summary", "total", sum.Total, "passed", sum.Passed, "failed", sum.Failed, "elapsed", sum.TotalElapsed.String())
}

func printSingle(res shopprobe.Result, logger pslog.Base) {
	if res.Skipped {
		logger.Info("skip", "probe", res.Probe)
		return
	}
	if res.Passed {
		logger.Info("pass", "probe", res.Probe, "dur", res.Duration.String())
		return
	}
	logger.Error("fail", "probe", res.Probe, "dur", res.Duration.String(), "err", res.ErrorText)
	for _, ex := range res.Exchanges {
		logger.Debug("exchange", "method", ex.Method, "path", ex.Path, "status", ex.Status, "err", ex.ErrorText)
	}
}
