// Package main is the llmwrapper command: one-off chats, side-by-side
// provider comparisons and an HTTP server over the same factory.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"llmwrapper/config"
	"llmwrapper/internal/httpclient"
	"llmwrapper/internal/logging"
	"llmwrapper/internal/observability"
	"llmwrapper/internal/providers"
	"llmwrapper/internal/workerpool"
	"llmwrapper/pkg/llm"
)

const usage = `Usage: llmwrapper [global flags] <command> [flags] [prompt]

Commands:
  chat       send a prompt to one provider and print the reply
  compare    send the same prompt to several providers concurrently
  models     list the models a provider offers
  providers  list registered providers
  serve      run the HTTP server

Global flags:
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// app carries what every command needs.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	factory  *providers.Factory
	registry *prometheus.Registry
	stdin    io.Reader
	stdout   io.Writer
	stderr   io.Writer
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	global := pflag.NewFlagSet("llmwrapper", pflag.ContinueOnError)
	global.SetOutput(stderr)
	global.SetInterspersed(false)
	configPath := global.StringP("config", "c", "", "YAML config file (default $LLMWRAPPER_CONFIG or ./config.yaml)")
	logLevel := global.String("log-level", "", "DEBUG, INFO, WARNING or ERROR")
	global.Usage = func() {
		fmt.Fprint(stderr, usage)
		global.PrintDefaults()
	}

	if err := global.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if global.NArg() == 0 {
		global.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	a, closeLog := newApp(cfg, stdin, stdout, stderr)
	defer func() { _ = closeLog.Close() }()

	cmd, rest := global.Arg(0), global.Args()[1:]
	var runErr error
	switch cmd {
	case "chat":
		runErr = a.chat(ctx, rest)
	case "compare":
		runErr = a.compare(ctx, rest)
	case "models":
		runErr = a.models(ctx, rest)
	case "providers":
		runErr = a.providers(rest)
	case "serve":
		runErr = a.serve(ctx, rest)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", cmd)
		global.Usage()
		return 2
	}

	switch {
	case runErr == nil:
		return 0
	case errors.Is(runErr, pflag.ErrHelp):
		return 0
	case errors.Is(runErr, errUsage):
		return 2
	default:
		fmt.Fprintf(stderr, "error: %v\n", runErr)
		return 1
	}
}

var errUsage = errors.New("usage")

func newApp(cfg *config.Config, stdin io.Reader, stdout, stderr io.Writer) (*app, io.Closer) {
	logOpts := cfg.LoggingOptions()
	logOpts.Console = stderr
	logger, closer := logging.New(logOpts)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	factory := llm.NewFactory(providers.Dependencies{
		Logger:     logging.NewCallLogger(logger, metrics.Hooks()),
		HTTPClient: httpclient.New(cfg.HTTPClientConfig()),
		Mode:       cfg.SecurityMode(),
		Pool:       workerpool.New(cfg.WorkerPool.Size),
	})

	return &app{
		cfg:      cfg,
		logger:   logger,
		factory:  factory,
		registry: registry,
		stdin:    stdin,
		stdout:   stdout,
		stderr:   stderr,
	}, closer
}

// providerConfig returns the configured settings for name, with model
// replacing the configured model when set.
func (a *app) providerConfig(name, model string) providers.Config {
	cfg := a.cfg.Provider(name)
	if model != "" {
		cfg.Model = model
	}
	return cfg
}

// prompt joins the positional arguments, or reads stdin when there are none.
func (a *app) prompt(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	raw, err := io.ReadAll(a.stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt from stdin: %w", err)
	}
	p := strings.TrimSpace(string(raw))
	if p == "" {
		return "", errors.New("empty prompt")
	}
	return p, nil
}
