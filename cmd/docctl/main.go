package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"medocs-backend/internal/bootstrap"
	"medocs-backend/internal/llm"
	"medocs-backend/internal/shared/config"
)

// deps are swapped out in tests.
type deps struct {
	loadConfig func() (config.Config, error)
	buildApp   func(ctx context.Context, cfg config.Config) (*bootstrap.App, error)
	newLLM     func(cfg config.Config) (llm.Client, error)
}

func defaultDeps() deps {
	return deps{
		loadConfig: config.Load,
		buildApp: func(ctx context.Context, cfg config.Config) (*bootstrap.App, error) {
			return bootstrap.BuildWith(ctx, cfg, bootstrap.Options{})
		},
		newLLM: func(cfg config.Config) (llm.Client, error) {
			client, err := bootstrap.OpenAIClient(cfg)
			if err != nil {
				return nil, err
			}
			return client, nil
		},
	}
}

func main() {
	if err := newRootCmd(defaultDeps()).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(d deps) *cobra.Command {
	root := &cobra.Command{
		Use:           "docctl",
		Short:         "Operate the medical documents backend",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(migrateCmd(d))
	root.AddCommand(reprocessCmd(d))
	root.AddCommand(stuckCmd(d))
	root.AddCommand(medicationsCmd(d))
	root.AddCommand(analyzeCmd(d))
	return root
}

func loadApp(ctx context.Context, d deps) (*bootstrap.App, error) {
	cfg, err := d.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	// The CLI always runs attempts in-process.
	cfg.ProcessingMode = "sync"
	return d.buildApp(ctx, cfg)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
