package main

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/soundvault/entitlement-service/internal/core/service"
	mongostore "github.com/soundvault/entitlement-service/internal/infrastructure/db/mongo"
	"github.com/soundvault/entitlement-service/pkg/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, log, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		store, err := openStore(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer store.Close()
		log.Info().Str("db_driver", cfg.DB.Driver).Msg("schema is up to date")
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Deactivate expired subscriptions once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, log, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		store, err := openStore(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer store.Close()

		subs := service.NewSubscriptionService(store, logger.Component("subscriptions"))
		n, err := subs.SweepExpired(ctx)
		if err != nil {
			return fmt.Errorf("sweep: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deactivated %d expired subscription(s)\n", n)
		return nil
	},
}

var eventsLimit int64

var eventsCmd = &cobra.Command{
	Use:   "events <user-id>",
	Short: "Print the most recent license events of a user from the audit trail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || userID <= 0 {
			return fmt.Errorf("invalid user id %q", args[0])
		}

		ctx := cmd.Context()
		cfg, _, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		client, db, err := connectMongo(ctx, cfg)
		if err != nil {
			return err
		}
		if client == nil {
			return errors.New("MONGO_URI is not set, the audit trail is disabled")
		}
		defer mongostore.Disconnect(client)

		events, err := mongostore.NewAuditLog(db).ByUser(ctx, userID, eventsLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tEVENT\tPAYMENT\tDEVICE\tAMOUNT\tREASON")
		for _, ev := range events {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%.2f\t%s\n",
				ev.OccurredAt.UTC().Format(time.RFC3339),
				ev.Type, ev.PaymentID, ev.DeviceHash, ev.Amount, ev.Reason)
		}
		return w.Flush()
	},
}

func init() {
	eventsCmd.Flags().Int64VarP(&eventsLimit, "limit", "n", 20, "maximum number of events to print")
}
