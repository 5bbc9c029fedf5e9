// vbforged serves the VB6 to .NET 9 Worker Service converter over
// HTTP. Configuration comes from the environment (optionally seeded
// from an env file); see vbforge.FromEnv for the recognized
// variables. An OpenAI-compatible backend supplies the code analysis;
// point --base-url at any compatible endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/vbforge-ai/vbforge"
	"github.com/vbforge-ai/vbforge/ai/openai"
	"github.com/vbforge-ai/vbforge/server"
	"github.com/vbforge-ai/vbforge/store"
	"github.com/vbforge-ai/vbforge/utils"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		addr      string
		envFile   string
		modelName string
		baseURL   string
	)

	flagSet := pflag.NewFlagSet("vbforged", pflag.ContinueOnError)
	flagSet.StringVar(&addr, "addr", ":8000", "listen address")
	flagSet.StringVar(&envFile, "env-file", "", "load environment variables from this file before reading config")
	flagSet.StringVar(&modelName, "model", "gpt-4o", "model used for code analysis")
	flagSet.StringVar(&baseURL, "base-url", "", "OpenAI-compatible API endpoint (default: the OpenAI API)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if envFile != "" {
		if err := utils.LoadEnvFile(envFile); err != nil {
			return err
		}
	}
	cfg := vbforge.FromEnv()

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return errors.New("OPENAI_API_KEY is not set")
	}
	model := openai.NewModel(modelName, apiKey)
	if baseURL != "" {
		model = openai.NewModel(modelName, apiKey, baseURL)
	}

	st, err := store.New(cfg.OutputDir, cfg.Retention, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	st.StartSweeper(ctx, time.Minute)

	srv := &http.Server{
		Addr:              addr,
		Handler:           server.New(cfg, model, st, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("vbforged listening", "addr", addr, "model", modelName)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
