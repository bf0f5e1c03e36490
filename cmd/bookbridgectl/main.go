// Command bookbridgectl runs catalog and cache maintenance against the same
// stores as the server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bookbridge/core/internal/app"
	"github.com/bookbridge/core/internal/config"
	"github.com/bookbridge/core/internal/pkg/logx"
)

type env struct {
	configPath string
	cfg        *config.AppConfig
	log        *zap.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:           "bookbridgectl",
		Short:         "Maintain the BookBridge catalog, caches and audio paths",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(e.configPath)
			if err != nil {
				return err
			}
			log, err := logx.New("", cfg.IsDev())
			if err != nil {
				return err
			}
			e.cfg, e.log = cfg, log
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if e.log != nil {
				_ = e.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&e.configPath, "config", config.DefaultConfigPath, "Path to YAML config file")

	root.AddCommand(
		newIngestCmd(e),
		newPrecomputeCmd(e),
		newAuditCmd(e),
		newInvalidateCmd(e),
	)
	return root
}

func (e *env) pipeline() (*app.Pipeline, error) {
	return app.NewPipeline(e.cfg, e.log)
}
