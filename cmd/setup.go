package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/desertthunder/heatx/internal/repositories"
	"github.com/desertthunder/heatx/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupDatabase initializes the database and runs migrations.
//
// Creates config.toml from the embedded template when it does not exist yet.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	var config *shared.Config
	if _, err := os.Stat(configPath); err == nil {
		if config, err = shared.LoadConfig(configPath); err != nil {
			r.logger.Warn("failed to load config, using defaults", "error", err)
			config = shared.DefaultConfig()
		}
	} else {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
			config = shared.DefaultConfig()
		} else {
			r.logger.Info("config file created", "path", configPath)
			if config, err = shared.LoadConfig(configPath); err != nil {
				r.logger.Warn("failed to load created config, using defaults", "error", err)
				config = shared.DefaultConfig()
			}
		}
	}

	r.logger.Info("initializing database", "path", config.Database.Path)

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, config.Database)

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	applied, err := shared.AppliedMigrations(db)
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}
	r.logger.Infof("setup complete for database: %v", config.Database.Path)
	return r.writePlain("✓ Database ready at %s (%d migrations applied)\n", config.Database.Path, len(applied))
}

// cache bundles the repositories backing the activity cache.
type cache struct {
	db         *sql.DB
	activities *repositories.ActivityRepository
	adapter    *repositories.ActivityCacheAdapter
	jobs       *repositories.SyncJobRepository
}

// openCache opens and migrates the configured database. The caller closes it.
func (r *Runner) openCache() (*cache, error) {
	db, err := shared.OpenConfiguredDatabase(r.config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache at %s: %w", r.config.Database.Path, err)
	}
	activities := repositories.NewActivityRepository(db)
	return &cache{
		db:         db,
		activities: activities,
		adapter:    repositories.NewActivityCacheAdapter(activities),
		jobs:       repositories.NewSyncJobRepository(db),
	}, nil
}

func (c *cache) Close() error {
	return c.db.Close()
}
