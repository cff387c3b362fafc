package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/aristath/phasing/internal/config"
	"github.com/aristath/phasing/internal/events"
	"github.com/aristath/phasing/internal/schedule"
	"github.com/aristath/phasing/internal/session"
	"github.com/aristath/phasing/internal/snapshot"
	"github.com/aristath/phasing/internal/source"
)

// globalOptions are the flags shared by every command.
type globalOptions struct {
	configPath string // Replaces the project config path
	sourcePath string // Property dump (.json or .csv)
	store      string // Snapshot backend override
	storePath  string // Snapshot location override
}

// env is everything a command needs, opened from the global options.
type env struct {
	cfg         *config.PhasingConfig
	globalPath  string
	projectPath string
	table       *source.Table
	store       snapshot.Store
	bus         *events.EventBus
	session     *session.Session
}

func loadConfig(opts *globalOptions) (*config.PhasingConfig, string, string, error) {
	globalPath, projectPath, err := config.DefaultPaths()
	if err != nil {
		return nil, "", "", err
	}
	if opts.configPath != "" {
		projectPath = opts.configPath
	}

	cfg, err := config.Load(globalPath, projectPath)
	if err != nil {
		return nil, "", "", err
	}
	if opts.store != "" {
		cfg.Snapshots.Backend = opts.store
	}
	if opts.storePath != "" {
		cfg.Snapshots.Path = opts.storePath
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", "", fmt.Errorf("invalid config: %w", err)
	}
	return cfg, globalPath, projectPath, nil
}

// openEnv loads config, the property source and the snapshot store, and
// creates a session over them. The source is optional unless needSource.
// tweaks adjust the session config before the session is created.
func openEnv(ctx context.Context, opts *globalOptions, needSource bool, tweaks ...func(*session.Config)) (*env, error) {
	cfg, globalPath, projectPath, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, globalPath: globalPath, projectPath: projectPath, bus: events.NewEventBus()}

	if opts.sourcePath != "" {
		path, err := config.ExpandPath(opts.sourcePath)
		if err != nil {
			return nil, err
		}
		if e.table, err = source.LoadFile(path); err != nil {
			return nil, err
		}
	} else if needSource {
		return nil, errors.New("a property source is required (--source)")
	}

	storePath := cfg.Snapshots.Path
	if storePath != "" {
		if storePath, err = config.ExpandPath(storePath); err != nil {
			return nil, err
		}
	}
	if e.store, err = snapshot.Open(ctx, cfg.Snapshots.Backend, storePath); err != nil {
		return nil, fmt.Errorf("opening snapshot store: %w", err)
	}

	builderCfg, err := cfg.BuilderConfig()
	if err != nil {
		e.store.Close()
		return nil, err
	}

	sessCfg := session.Config{
		Store:             e.store,
		Bus:               e.bus,
		Builder:           builderCfg,
		Mapping:           cfg.Mapping,
		DefaultSnapshot:   cfg.Snapshots.DefaultName,
		QuickDurationDays: cfg.Build.QuickDurationDays,
		Speed:             cfg.Playback.Speed,
	}
	if e.table != nil {
		var src schedule.PropertySource = e.table
		if !cfg.Build.Retry.Disabled {
			src = source.NewResilient("property-source", e.table, cfg.Build.Retry.SourceRetry())
		}
		sessCfg.Source = src
		sessCfg.Universe = e.table
	}
	for _, tweak := range tweaks {
		tweak(&sessCfg)
	}
	e.session = session.New(sessCfg)
	e.session.SetDisplay(cfg.Display.Colorize)
	return e, nil
}

// Close releases the session, bus and store.
func (e *env) Close() {
	e.session.Close()
	e.bus.Close()
	if err := e.store.Close(); err != nil {
		log.Printf("WARNING: closing snapshot store: %v", err)
	}
}

// buildTasks runs a full build, or a quick build when property is set.
func (e *env) buildTasks(ctx context.Context, property string, days int) (*schedule.BuildResult, error) {
	if property != "" {
		return e.session.QuickBuild(ctx, property, days)
	}
	return e.session.Build(ctx)
}
