package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"eventpay/internal/catalog"
	"eventpay/internal/platform/config"
	"eventpay/internal/platform/database"
	"eventpay/internal/registration/replay"
	regservice "eventpay/internal/registration/service"
	"eventpay/internal/registration/store"
	"eventpay/pkg/platform/outbox"
	outboxpg "eventpay/pkg/platform/outbox/store/postgres"
)

// backend is an opened registration store with its outbox.
type backend struct {
	store  regservice.Store
	outbox outbox.Store
	close  func() error
}

func openBackend(ctx context.Context, cfg cliConfig) (*backend, error) {
	switch cfg.Store {
	case config.StoreBolt, "":
		b, err := store.OpenBolt(cfg.BoltPath)
		if err != nil {
			return nil, err
		}
		return &backend{store: b, outbox: b.Outbox(), close: b.Close}, nil
	case config.StorePostgres:
		pool, err := database.New(ctx, config.DatabaseConfig{URL: cfg.DatabaseURL, MaxOpenConns: 4, MaxIdleConns: 1})
		if err != nil {
			return nil, err
		}
		if pool == nil {
			return nil, fmt.Errorf("database_url is required for the postgres store")
		}
		if err := pool.Migrate(ctx); err != nil {
			pool.Close() //nolint:errcheck // best-effort cleanup on init failure
			return nil, err
		}
		return &backend{store: store.NewPostgres(pool.DB()), outbox: outboxpg.New(pool.DB()), close: pool.Close}, nil
	default:
		return nil, fmt.Errorf("unsupported store %q", cfg.Store)
	}
}

func replayCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Reconcile exported payment captures into registrations",
		Long: `Reads a YAML file of captured payments and applies each one through the
reconciliation engine. Payments already recorded are reported as duplicates
and left untouched, so a file can be replayed safely.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("file")
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			captures, err := replay.Load(f)
			if err != nil {
				return err
			}

			cfg, err := resolve(v)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			b, err := openBackend(ctx, cfg)
			if err != nil {
				return err
			}
			defer b.close() //nolint:errcheck // read-only path after replay

			report, err := replay.Run(ctx, regservice.New(b.store), captures)
			printReport(cmd.OutOrStdout(), report)
			return err
		},
	}
	cmd.Flags().StringP("file", "f", "", "captures file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func printReport(w io.Writer, report *replay.Report) {
	if report == nil {
		return
	}
	fmt.Fprintf(w, "applied:    %d\n", report.Applied)
	fmt.Fprintf(w, "duplicates: %d\n", report.Duplicates)
	fmt.Fprintf(w, "failed:     %d\n", len(report.Failures))
	for _, f := range report.Failures {
		fmt.Fprintf(w, "  %s: %v\n", f.PaymentID, f.Err)
	}
}

func catalogCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Print the priced event catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolve(v)
			if err != nil {
				return err
			}
			cat := catalog.Default()
			if cfg.Catalog != "" {
				if cat, err = catalog.Load(cfg.Catalog); err != nil {
					return err
				}
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "ID\tNAME\tPRICE (%s)\n", cat.Currency())
			for _, e := range cat.Entries() {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", e.ID, e.DisplayName, e.Price)
			}
			return tw.Flush()
		},
	}
}

func showCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "show <userId>",
		Short: "Print a user's registration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolve(v)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			b, err := openBackend(ctx, cfg)
			if err != nil {
				return err
			}
			defer b.close() //nolint:errcheck // read-only

			agg, err := regservice.New(b.store).Registration(ctx, args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(agg)
		},
	}
}

func outboxCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "outbox",
		Short: "Print the number of unpublished registration events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolve(v)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			b, err := openBackend(ctx, cfg)
			if err != nil {
				return err
			}
			defer b.close() //nolint:errcheck // read-only

			pending, err := b.outbox.CountPending(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pending: %d\n", pending)
			return nil
		},
	}
}
