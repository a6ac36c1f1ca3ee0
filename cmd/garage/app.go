package main

import (
	"context"
	"fmt"
	"time"

	"github.com/roelfdiedericks/garage/internal/agents"
	"github.com/roelfdiedericks/garage/internal/config"
	"github.com/roelfdiedericks/garage/internal/llm"
	. "github.com/roelfdiedericks/garage/internal/logging"
	"github.com/roelfdiedericks/garage/internal/store"
	"github.com/roelfdiedericks/garage/internal/tools"
)

// App lazily builds what a command needs and closes it afterwards.
type App struct {
	ctx context.Context
	cli *CLI

	cfg    *config.Config
	store  *store.SQLiteStore
	agents *agents.Set
}

func (a *App) Config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := config.Load(a.cli.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if !a.cli.Debug {
		SetLevel(ParseLevel(cfg.LogLevel))
	}
	L_object("config", redact(cfg))
	a.cfg = cfg
	return cfg, nil
}

func (a *App) Store() (*store.SQLiteStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	cfg, err := a.Config()
	if err != nil {
		return nil, err
	}
	st, err := store.NewSQLiteStore(store.StoreConfig{
		Path:        cfg.Database.Path,
		BusyTimeout: cfg.Database.BusyTimeoutMs,
	})
	if err != nil {
		return nil, err
	}
	a.store = st
	return st, nil
}

func (a *App) Agents() (*agents.Set, error) {
	if a.agents != nil {
		return a.agents, nil
	}
	cfg, err := a.Config()
	if err != nil {
		return nil, err
	}
	st, err := a.Store()
	if err != nil {
		return nil, err
	}
	provider, err := llm.NewProvider(cfg.LLM.Driver, cfg.LLM)
	if err != nil {
		return nil, err
	}
	prompts, err := agents.LoadPrompts(cfg.Agent.PromptsFile)
	if err != nil {
		return nil, err
	}

	set, err := agents.New(agents.Deps{
		Provider: provider,
		Store:    st,
		Weather: tools.WeatherConfig{
			APIKey:  cfg.Weather.APIKey,
			BaseURL: cfg.Weather.BaseURL,
			Timeout: time.Duration(cfg.Weather.TimeoutSeconds) * time.Second,
			Retry:   cfg.Retry.Policy(tools.IsWeatherRateLimited),
		},
		Prompts:       prompts,
		MaxToolTurns:  cfg.Agent.MaxToolTurns,
		OutputRetries: cfg.Agent.OutputRetries,
		Retry:         cfg.Retry.Policy(llm.IsRateLimited),
	})
	if err != nil {
		return nil, err
	}
	L_info("garage: using %s/%s", provider.Type(), provider.Model())
	a.agents = set
	return set, nil
}

func (a *App) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			L_warn("garage: closing store", "error", err)
		}
	}
}

// redact returns a copy of cfg with credentials masked.
func redact(cfg *config.Config) config.Config {
	shown := *cfg
	shown.LLM.APIKey = mask(shown.LLM.APIKey)
	shown.Weather.APIKey = mask(shown.Weather.APIKey)
	return shown
}
