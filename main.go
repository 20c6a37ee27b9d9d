// main.go
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Themichaelreimer/medistat/cache"
	"github.com/Themichaelreimer/medistat/collectors"
	"github.com/Themichaelreimer/medistat/config"
	"github.com/Themichaelreimer/medistat/database"
	"github.com/Themichaelreimer/medistat/datalake"
	"github.com/Themichaelreimer/medistat/logger"
	"github.com/Themichaelreimer/medistat/resolver"
	"github.com/Themichaelreimer/medistat/services"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "medistat",
		Short:         "Medistat data collection pipelines",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "path to config file")

	collect := &cobra.Command{
		Use:   "collect [extract|transform|all] [collector]",
		Short: "Run the extract and/or transform phase of a collector",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			layer, name := args[0], args[1]
			if !services.ValidLayer(layer) {
				return fmt.Errorf("unknown layer %q, options are: extract, transform, all", layer)
			}
			return runCollect(cmd.Context(), configPath, layer, name)
		},
	}
	root.AddCommand(collect)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runCollect(ctx context.Context, configPath, layer, name string) error {
	// Credentials live in the environment; a .env file is a convenience,
	// not a requirement.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		return err
	}
	defer redisCache.Close()

	store := database.NewStore(db)
	lake := datalake.New(cfg.Datalake.Root, store)
	res := resolver.New(redisCache, store)

	registry := collectors.NewRegistry()
	registry.Register(collectors.NewHMD(log, cfg.HMD, store, lake, res, redisCache))

	return services.RunCollector(ctx, log, registry, layer, name)
}
