package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"llmwrapper/internal/core"
	"llmwrapper/internal/server"
	"llmwrapper/internal/workerpool"
)

const shutdownTimeout = 30 * time.Second

// chatFlags are shared by chat and compare.
type chatFlags struct {
	system      string
	temperature float64
	maxTokens   int
	timeout     time.Duration
}

func (f *chatFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.system, "system", "s", "", "system prompt")
	fs.Float64VarP(&f.temperature, "temperature", "t", -1, "sampling temperature (provider default when unset)")
	fs.IntVar(&f.maxTokens, "max-tokens", 0, "reply token limit (provider default when unset)")
	fs.DurationVar(&f.timeout, "timeout", 0, "per-call timeout")
}

func (f *chatFlags) messages(prompt string) []core.Message {
	var msgs []core.Message
	if f.system != "" {
		msgs = append(msgs, core.SystemMessage(f.system))
	}
	return append(msgs, core.UserMessage(prompt))
}

func (f *chatFlags) options() []core.ChatOption {
	var opts []core.ChatOption
	if f.temperature >= 0 {
		opts = append(opts, core.WithTemperature(f.temperature))
	}
	if f.maxTokens > 0 {
		opts = append(opts, core.WithMaxTokens(f.maxTokens))
	}
	if f.timeout > 0 {
		opts = append(opts, core.WithTimeout(f.timeout))
	}
	return opts
}

func (a *app) newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func parse(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	return nil
}

func (a *app) chat(ctx context.Context, args []string) error {
	fs := a.newFlagSet("chat")
	provider := fs.StringP("provider", "p", "openai", "provider name")
	model := fs.StringP("model", "m", "", "model (provider default when unset)")
	var cf chatFlags
	cf.register(fs)
	if err := parse(fs, args); err != nil {
		return err
	}

	prompt, err := a.prompt(fs.Args())
	if err != nil {
		return err
	}

	wrapper, err := a.factory.GetLLM(*provider, a.providerConfig(*provider, *model))
	if err != nil {
		return err
	}
	reply, err := wrapper.Chat(ctx, cf.messages(prompt), cf.options()...)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.stdout, reply)
	return err
}

type compareResult struct {
	provider string
	model    string
	reply    string
	elapsed  time.Duration
	err      error
}

// compare sends one prompt to several providers at once and prints the
// replies in the order the providers were named. A failing provider does
// not cancel the others.
func (a *app) compare(ctx context.Context, args []string) error {
	fs := a.newFlagSet("compare")
	names := fs.StringSliceP("providers", "p", nil, "providers to compare (default: every configured provider)")
	var cf chatFlags
	cf.register(fs)
	if err := parse(fs, args); err != nil {
		return err
	}

	prompt, err := a.prompt(fs.Args())
	if err != nil {
		return err
	}

	targets := *names
	if len(targets) == 0 {
		for name := range a.cfg.Providers {
			targets = append(targets, name)
		}
		slices.Sort(targets)
	}
	if len(targets) == 0 {
		return errors.New("no providers configured; pass --providers")
	}

	results := make([]compareResult, len(targets))
	messages := cf.messages(prompt)
	opts := cf.options()

	g, gctx := errgroup.WithContext(ctx)
	limit := a.cfg.WorkerPool.Size
	if limit <= 0 {
		limit = workerpool.DefaultSize
	}
	g.SetLimit(limit)
	for i, name := range targets {
		g.Go(func() error {
			res := compareResult{provider: name}
			defer func() { results[i] = res }()

			model, err := a.factory.GetLLM(name, a.providerConfig(name, ""))
			if err != nil {
				res.err = err
				return nil
			}
			res.model = model.Model()
			start := time.Now()
			res.reply, res.err = model.Chat(gctx, messages, opts...)
			res.elapsed = time.Since(start)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			fmt.Fprintf(a.stdout, "== %s: error ==\n%v\n\n", r.provider, r.err)
			continue
		}
		fmt.Fprintf(a.stdout, "== %s (%s, %s) ==\n%s\n\n", r.provider, r.model, r.elapsed.Round(time.Millisecond), r.reply)
	}
	if failed == len(results) {
		return errors.New("every provider failed")
	}
	return nil
}

func (a *app) models(ctx context.Context, args []string) error {
	fs := a.newFlagSet("models")
	provider := fs.StringP("provider", "p", "openai", "provider name")
	if err := parse(fs, args); err != nil {
		return err
	}

	model, err := a.factory.GetLLM(*provider, a.providerConfig(*provider, ""))
	if err != nil {
		return err
	}
	lister, ok := model.(core.ModelLister)
	if !ok {
		return fmt.Errorf("provider %s cannot list models", *provider)
	}
	names, err := lister.ListModels(ctx)
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Fprintln(a.stdout, n)
	}
	return nil
}

func (a *app) providers(args []string) error {
	fs := a.newFlagSet("providers")
	if err := parse(fs, args); err != nil {
		return err
	}

	list := a.factory.ListProviders()
	for _, name := range list.Sync {
		defaultModel, _ := a.factory.DefaultModel(name)
		async := ""
		if slices.Contains(list.Async, name) {
			async = " async"
		}
		configured := ""
		if _, ok := a.cfg.Providers[name]; ok {
			configured = " configured"
		}
		fmt.Fprintf(a.stdout, "%-10s %-26s%s%s\n", name, defaultModel, async, configured)
	}
	return nil
}

func (a *app) serve(ctx context.Context, args []string) error {
	fs := a.newFlagSet("serve")
	addr := fs.String("addr", a.cfg.Server.Addr, "listen address")
	if err := parse(fs, args); err != nil {
		return err
	}

	if a.cfg.Server.MasterKey == "" {
		a.logger.Warn("LLMWRAPPER_MASTER_KEY not set, server accepts unauthenticated requests")
	}

	srv := server.New(a.factory, a.cfg.Providers, &server.Config{
		MasterKey:       a.cfg.Server.MasterKey,
		MetricsEnabled:  a.cfg.Server.MetricsEnabled,
		MetricsEndpoint: a.cfg.Server.MetricsEndpoint,
		MetricsHandler:  promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
		Logger:          a.logger,
	})

	var once sync.Once
	shutdown := func() error {
		var err error
		once.Do(func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			err = srv.Shutdown(sctx)
		})
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("starting server", "address", *addr)
		if err := srv.Start(*addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down server")
		return shutdown()
	})

	if err := g.Wait(); err != nil {
		return err
	}
	a.logger.Info("server stopped gracefully")
	return nil
}
