package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/railzwaylabs/bullion/internal/clock"
	"github.com/railzwaylabs/bullion/internal/config"
	"github.com/railzwaylabs/bullion/internal/migration"
	"github.com/railzwaylabs/bullion/internal/observability"
	"github.com/railzwaylabs/bullion/internal/order"
	"github.com/railzwaylabs/bullion/internal/payment"
	"github.com/railzwaylabs/bullion/internal/price"
	"github.com/railzwaylabs/bullion/internal/pricing"
	"github.com/railzwaylabs/bullion/internal/product"
	"github.com/railzwaylabs/bullion/internal/quota"
	"github.com/railzwaylabs/bullion/internal/rate"
	"github.com/railzwaylabs/bullion/internal/redis"
	"github.com/railzwaylabs/bullion/internal/scheduler"
	"github.com/railzwaylabs/bullion/internal/server"
	"github.com/railzwaylabs/bullion/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "bullion",
		Short:   "Bullion commerce CLI",
		Version: readVersionFromEnv(),
	}
	root.AddCommand(newMigrateCmd(), newServeCmd(), newSchedulerCmd(), newAllCmd())
	return root
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate()
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			runApp(quota.Module, server.Module)
			return nil
		},
	}
}

func newSchedulerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Run background payment reconciliation",
		RunE: func(cmd *cobra.Command, args []string) error {
			runApp(scheduler.Module)
			return nil
		},
	}
}

func newAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Run migrations, then start the API and scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runMigrate(); err != nil {
				return err
			}
			runApp(quota.Module, server.Module, scheduler.Module)
			return nil
		},
	}
}

func runMigrate() error {
	app := fx.New(
		config.Module,
		observability.Module,
		db.Module,
		migration.Module,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("migrate failed: %w", err)
	}
	_ = app.Stop(context.Background())
	return nil
}

func coreModules() []fx.Option {
	return []fx.Option{
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		fx.Invoke(migration.EnforceSchemaGate),
		clock.Module,
		redis.Module,
		rate.Module,
		price.Module,
		pricing.Module,
		product.Module,
		order.Module,
		payment.Module,
	}
}

func runApp(extra ...fx.Option) {
	app := fx.New(append(coreModules(), extra...)...)
	app.Run()
}

func registerSnowflake() (*snowflake.Node, error) {
	nodeID := int64(1)
	if v := strings.TrimSpace(os.Getenv("BULLION_NODE_ID")); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid BULLION_NODE_ID: %w", err)
		}
		nodeID = parsed
	}
	return snowflake.NewNode(nodeID)
}

func readVersionFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("APP_VERSION")); v != "" {
		return v
	}
	return "dev"
}
