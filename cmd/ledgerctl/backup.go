package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"receiptledger/internal/storage"
)

func exportCmd() *cobra.Command {
	var format, output, dialect string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a full backup as JSON or SQL",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), state.cfg.RestoreTimeout)
			defer cancel()
			actor, err := state.actor(ctx)
			if err != nil {
				return err
			}

			var w io.Writer = state.out
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}

			switch format {
			case "json":
				err = state.backend.Backup.ExportJSON(ctx, actor, w)
			case "sql":
				err = state.backend.Backup.ExportSQL(ctx, actor, w, storage.Dialect(dialect))
			default:
				return fmt.Errorf("unknown format %q: must be json or sql", format)
			}
			if err != nil {
				return err
			}
			if f, ok := w.(*os.File); ok && f != os.Stdout {
				return f.Sync()
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "json or sql")
	cmd.Flags().StringVarP(&output, "out", "o", "-", "output file, - for stdout")
	cmd.Flags().StringVar(&dialect, "dialect", "", "sqlite or postgres for --format sql; defaults to the active backend")
	return cmd
}

func restoreCmd() *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Replace every collection with a JSON backup",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), state.cfg.RestoreTimeout)
			defer cancel()
			actor, err := state.actor(ctx)
			if err != nil {
				return err
			}

			var r io.Reader = os.Stdin
			if input != "-" {
				f, err := os.Open(input)
				if err != nil {
					return fmt.Errorf("open %s: %w", input, err)
				}
				defer f.Close()
				r = f
			}

			if err := state.backend.Backup.RestoreJSON(ctx, actor, r); err != nil {
				return err
			}
			state.logger.Info("Restore completed", "source", input)
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "in", "i", "", "backup file, - for stdin")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}
