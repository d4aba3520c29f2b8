package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"receiptledger/internal/backend"
	"receiptledger/internal/core"
	"receiptledger/internal/services"
	"receiptledger/internal/storage"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			bt := backend.BackendType(state.cfg.DataBackend)
			dialect, ok := bt.Dialect()
			if !ok {
				state.logger.Info("Nothing to migrate", "backend", bt)
				return nil
			}
			dsn := state.cfg.SQLiteDBPath
			if bt == backend.PostgresBackend {
				dsn = state.cfg.DatabaseURL
			}
			if err := storage.RunMigrations(dialect, dsn); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			state.logger.Info("Database migrations completed", "backend", bt)
			return nil
		},
	}
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Manage users"}

	var username, name, role string
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a user; the first admin is bootstrapped this way",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := state.withTimeout(cmd)
			defer cancel()
			r := core.Role(role)
			if !r.IsValid() {
				return core.NewFieldError("role", "unknown role "+role)
			}
			res, err := state.open(ctx)
			if err != nil {
				return err
			}
			u, err := res.Store.CreateUser(ctx, core.User{Username: username, DisplayName: name, Role: r})
			if err != nil {
				return err
			}
			return state.printJSON(u)
		},
	}
	add.Flags().StringVar(&username, "username", "", "login name")
	add.Flags().StringVar(&name, "name", "", "display name")
	add.Flags().StringVar(&role, "role", string(core.RoleCollector), "admin, manager or collector")
	_ = add.MarkFlagRequired("username")

	list := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := state.withTimeout(cmd)
			defer cancel()
			res, err := state.open(ctx)
			if err != nil {
				return err
			}
			users, err := res.Store.ListUsers(ctx)
			if err != nil {
				return err
			}
			return state.printJSON(users)
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}

func allocateCmd() *cobra.Command {
	var bookID int64
	cmd := &cobra.Command{
		Use:   "allocate",
		Short: "Show the lowest free receipt number of a book",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := state.withTimeout(cmd)
			defer cancel()
			res, err := state.open(ctx)
			if err != nil {
				return err
			}
			usage, err := res.Ledger.BookUsage(ctx, bookID)
			if err != nil {
				return err
			}
			if usage.NextNumber == nil {
				return fmt.Errorf("book %d: %w", bookID, core.ErrRangeExhausted)
			}
			return state.printJSON(usage)
		},
	}
	cmd.Flags().Int64Var(&bookID, "book", 0, "receipt book id")
	_ = cmd.MarkFlagRequired("book")
	return cmd
}

func receiptCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "receipt", Short: "Record or remove donation receipts"}

	var (
		bookID, number        int64
		giver, address, phone string
		amount                string
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Record a donation; the number is allocated unless --number is given",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := state.withTimeout(cmd)
			defer cancel()
			actor, err := state.actor(ctx)
			if err != nil {
				return err
			}
			money, err := core.ParseMoney(amount)
			if err != nil {
				return core.NewFieldError("amount", err.Error())
			}
			in := services.NewReceipt{BookID: bookID, GiverName: giver, Address: address, Phone: phone, Amount: money}
			if cmd.Flags().Changed("number") {
				in.Number = &number
			}
			r, err := state.backend.Ledger.CreateReceipt(ctx, actor, in)
			if err != nil {
				return err
			}
			return state.printJSON(r)
		},
	}
	add.Flags().Int64Var(&bookID, "book", 0, "receipt book id")
	add.Flags().Int64Var(&number, "number", 0, "explicit receipt number")
	add.Flags().StringVar(&giver, "giver", "", "giver name")
	add.Flags().StringVar(&address, "address", "", "giver address")
	add.Flags().StringVar(&phone, "phone", "", "giver phone number")
	add.Flags().StringVar(&amount, "amount", "", "amount, e.g. 350.50")
	for _, f := range []string{"book", "giver", "address", "amount"} {
		_ = add.MarkFlagRequired(f)
	}

	var receiptID int64
	del := &cobra.Command{
		Use:   "delete",
		Short: "Delete a receipt and free its number",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := state.withTimeout(cmd)
			defer cancel()
			actor, err := state.actor(ctx)
			if err != nil {
				return err
			}
			return state.backend.Ledger.DeleteReceipt(ctx, actor, receiptID)
		},
	}
	del.Flags().Int64Var(&receiptID, "id", 0, "receipt id")
	_ = del.MarkFlagRequired("id")

	cmd.AddCommand(add, del)
	return cmd
}

func financialsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "financials",
		Short: "Compute the live ledger snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := state.withTimeout(cmd)
			defer cancel()
			res, err := state.open(ctx)
			if err != nil {
				return err
			}
			snap, err := res.Ledger.GetFinancials(ctx)
			if err != nil {
				return err
			}
			return state.printJSON(snap)
		},
	}
}

func publishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Freeze the current snapshot as the public report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := state.withTimeout(cmd)
			defer cancel()
			actor, err := state.actor(ctx)
			if err != nil {
				return err
			}
			report, err := state.backend.Ledger.PublishReport(ctx, actor)
			if err != nil {
				return err
			}
			return state.printJSON(report)
		},
	}
}

func latestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "latest",
		Short: "Show the most recently published report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := state.withTimeout(cmd)
			defer cancel()
			res, err := state.open(ctx)
			if err != nil {
				return err
			}
			report, err := res.Ledger.LatestPublishedReport(ctx)
			if errors.Is(err, core.ErrNotFound) {
				return errors.New("no report has been published yet")
			}
			if err != nil {
				return err
			}
			return state.printJSON(report)
		},
	}
}
