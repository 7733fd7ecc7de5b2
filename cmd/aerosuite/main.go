package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aerosuite/platform/pkg/autoscale"
	"github.com/aerosuite/platform/pkg/cluster"
	"github.com/aerosuite/platform/pkg/config"
	"github.com/aerosuite/platform/pkg/events"
	"github.com/aerosuite/platform/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, cluster.ErrRuntime) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "aerosuite",
	Short: "AeroSuite - quality inspection and model serving platform",
	Long: `AeroSuite hosts the inspection domain API, distributed sessions,
the multi-tier cache and the ML serving core as a cluster of worker
processes under one supervisor.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"AeroSuite version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(workerCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON || cfg.IsProduction(),
	})
	return cfg, nil
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the cluster supervisor with its worker processes",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		bus := events.NewBus()
		bus.Start()
		defer bus.Stop()

		sup, err := cluster.NewSupervisor(cfg, bus)
		if err != nil {
			return err
		}

		scaler := autoscale.New(cfg.Autoscale, sup.Telemetry(), sup.WorkerCount, bus)
		scaler.Start()
		defer scaler.Stop()

		return sup.Run(context.Background())
	},
}

var workerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Run one worker process (spawned by the supervisor)",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		w := cluster.NewWorker(cfg, cluster.WorkerOptions{})
		return w.Run(context.Background())
	},
}
