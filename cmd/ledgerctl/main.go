package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"receiptledger/internal/backend"
	"receiptledger/internal/cli"
	"receiptledger/internal/config"
	"receiptledger/internal/core"
	"receiptledger/internal/log"
)

// app carries what the subcommands share. The backend is opened on first
// use so that commands like migrate never wire the services.
type app struct {
	cfg     *config.Config
	logger  *log.Logger
	backend *backend.BackendResult
	actorID int64
	out     io.Writer
}

var state = &app{out: os.Stdout}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Administer the donation receipt ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cli.LoadEnvFile()
			cfg, err := cli.LoadAndValidateConfig()
			if err != nil {
				return err
			}
			state.cfg = cfg
			state.logger = cli.SetupLogger(cfg, log.ComponentCLI)
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if state.backend == nil {
				return nil
			}
			res := state.backend
			state.backend = nil
			return res.Cleanup()
		},
	}
	root.PersistentFlags().Int64Var(&state.actorID, "as", 0, "user id performing the operation")

	root.AddCommand(migrateCmd())
	root.AddCommand(userCmd())
	root.AddCommand(allocateCmd())
	root.AddCommand(receiptCmd())
	root.AddCommand(financialsCmd())
	root.AddCommand(publishCmd())
	root.AddCommand(latestCmd())
	root.AddCommand(exportCmd())
	root.AddCommand(restoreCmd())
	return root
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	cancel()

	if err != nil {
		slog.Error("Command failed", log.FieldError, err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (a *app) open(ctx context.Context) (*backend.BackendResult, error) {
	if a.backend != nil {
		return a.backend, nil
	}
	res, err := cli.OpenBackend(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, err
	}
	a.backend = res
	return res, nil
}

// actor resolves --as into an Actor carrying the stored role.
func (a *app) actor(ctx context.Context) (core.Actor, error) {
	if a.actorID <= 0 {
		return core.Actor{}, fmt.Errorf("--as <user id> is required")
	}
	res, err := a.open(ctx)
	if err != nil {
		return core.Actor{}, err
	}
	return res.Ledger.ResolveActor(ctx, a.actorID)
}

// withTimeout bounds an operation by OPERATION_TIMEOUT.
func (a *app) withTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), a.cfg.OperationTimeout)
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
