package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/harvestline/harvestline-backend/internal/stock/app"
	"github.com/harvestline/harvestline-backend/internal/stock/repository"
	"github.com/harvestline/harvestline-backend/internal/stock/service"
	"github.com/harvestline/harvestline-backend/pkg/config"
	"github.com/harvestline/harvestline-backend/pkg/database"
	"github.com/harvestline/harvestline-backend/pkg/logger"
	"github.com/harvestline/harvestline-backend/pkg/messaging"
)

const cliName = "stockctl"

// cli carries what every subcommand needs once the root has loaded config
type cli struct {
	cfg     *config.Config
	log     *logger.Logger
	verbose bool
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           cliName,
		Short:         "Operate the Harvestline stock engine",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWithValidation(cliName)
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			c.cfg = cfg

			level := zerolog.WarnLevel
			if c.verbose {
				level = zerolog.DebugLevel
			}
			c.log = logger.NewWithWriter(cmd.ErrOrStderr(), cliName).Level(level)
			return nil
		},
	}
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log at debug level to stderr")

	root.AddCommand(
		c.sweepCmd(),
		c.issueCmd(),
		c.currentCmd(),
		c.namespacesCmd(),
		c.migrateCmd(),
	)
	return root
}

func (c *cli) sweepCmd() *cobra.Command {
	var async bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a reconciliation detection pass",
		Long: "Re-derives low-stock and expiry alerts from the whole ledger. With --async the\n" +
			"pass is requested from the running stock service over RabbitMQ instead.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if async {
				return c.requestSweep(cmd.Context())
			}
			return c.withServices(cmd.Context(), func(svc *app.Services) error {
				result, err := svc.Sweep.RunDetectionPass(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			})
		},
	}
	cmd.Flags().BoolVar(&async, "async", false, "publish a sweep request instead of running the pass here")
	return cmd
}

func (c *cli) requestSweep(ctx context.Context) error {
	if c.cfg.RabbitMQ.URL == "" {
		return fmt.Errorf("--async needs HARVESTLINE_RABBITMQ_URL")
	}

	rmq, err := messaging.New(&c.cfg.RabbitMQ, c.log)
	if err != nil {
		return err
	}
	defer rmq.Close()

	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeStockEvents, cliName, c.log)
	if err != nil {
		return err
	}

	requestedBy := os.Getenv("USER")
	if requestedBy == "" {
		requestedBy = cliName
	}
	return publisher.Publish(ctx, messaging.EventSweepRequested, messaging.SweepRequestedEvent{RequestedBy: requestedBy})
}

func (c *cli) issueCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "issue <namespace>",
		Short:     "Issue the next identifier in a namespace",
		Args:      cobra.ExactArgs(1),
		ValidArgs: service.NamespaceNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withServices(cmd.Context(), func(svc *app.Services) error {
				code, err := svc.Issuer.Issue(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), code)
				return nil
			})
		},
	}
}

func (c *cli) currentCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "current <namespace>",
		Short:     "Show the last value issued in a namespace",
		Args:      cobra.ExactArgs(1),
		ValidArgs: service.NamespaceNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withServices(cmd.Context(), func(svc *app.Services) error {
				n, err := svc.Issuer.Current(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			})
		},
	}
}

func (c *cli) namespacesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "namespaces",
		Short: "List identifier namespaces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range service.NamespaceNames() {
				ns, _ := service.LookupNamespace(name)
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %s\n", name, ns.Prefix)
			}
			return nil
		},
	}
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := database.New(&c.cfg.Database, c.log)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := repository.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

// withServices opens the configured stores for the duration of fn
func (c *cli) withServices(ctx context.Context, fn func(*app.Services) error) error {
	stores, err := app.OpenStores(ctx, c.cfg, c.log)
	if err != nil {
		return err
	}
	defer stores.Close(context.WithoutCancel(ctx))

	return fn(app.NewServices(c.cfg, stores, nil, c.log))
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
