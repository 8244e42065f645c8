package main

import (
	"context"
	"fmt"
	"log"

	"siege-coordinator/config"
	"siege-coordinator/models"
	"siege-coordinator/services"
	"siege-coordinator/storage"
	"siege-coordinator/workers"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:           "siege",
		Short:         "Guild siege coordinator",
		Long:          "siege schedules guild sieges, tracks role sign-ups and keeps the completed-siege archive.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", config.DefaultEnvFile, "dotenv file read before the environment")

	cmd.AddCommand(
		newServeCmd(&envFile),
		newArchiveCmd(&envFile),
		newStatsCmd(&envFile),
	)
	return cmd
}

// app bundles what every command needs after config is loaded.
type app struct {
	cfg         config.Config
	store       storage.Backend
	service     *services.SiegeService
	territories models.TerritoryTable
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		log.Printf("[Store] Close failed: %v", err)
	}
}

// openApp loads config, opens the store and loads the service state.
// Read-only commands pass nil reminders; they never create events.
func openApp(ctx context.Context, envFile string, reminders services.Reminders, clock clockwork.Clock) (*app, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}

	territories, err := models.DefaultTerritories()
	if cfg.TerritoriesFile != "" {
		territories, err = models.LoadTerritories(cfg.TerritoriesFile)
	}
	if err != nil {
		return nil, fmt.Errorf("territories: %w", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	settings := services.Settings{Location: loc, StartHour: cfg.StartHour, ReminderLead: cfg.ReminderLead}

	var notifier services.Notifier = workers.LogNotifier{}
	if cfg.NotifyURL != "" {
		notifier = workers.NewNotifyClient(cfg.NotifyURL, cfg.ServiceToken)
	}

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	svc := services.NewSiegeService(store, reminders, notifier, clock, settings)
	if err := svc.Load(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return &app{cfg: cfg, store: store, service: svc, territories: territories}, nil
}
