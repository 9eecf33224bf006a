package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/nachoal/kitgpt-go/chat"
	"github.com/nachoal/kitgpt-go/config"
	"github.com/nachoal/kitgpt-go/history"
	"github.com/nachoal/kitgpt-go/internal/logging"
	"github.com/nachoal/kitgpt-go/internal/toolinit"
	"github.com/nachoal/kitgpt-go/provider"
	"github.com/nachoal/kitgpt-go/tools/registry"
)

// historyCacheSize is how many full conversations the history browser keeps
const historyCacheSize = 64

// app holds what every command needs. History is opened lazily since most
// commands never touch it.
type app struct {
	cfg       *config.Config
	logger    zerolog.Logger
	logCloser io.Closer
	settings  *config.SettingsStore
	providers *provider.Registry
	tools     *registry.Registry

	store   *history.Store
	browser *history.Browser
}

type appOptions struct {
	// logToFile keeps log output off a terminal owned by the UI
	logToFile bool
}

func openApp(opts appOptions) (*app, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, err
	}
	if err := godotenv.Load(cfg.EnvPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: Error loading %s: %v\n", cfg.EnvPath(), err)
	}

	logOpts := logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile}
	if opts.logToFile {
		logOpts.File = cfg.LogPath()
	}
	logger, closer, err := logging.New(logOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	settings, err := config.OpenSettings(cfg.SettingsPath(), cfg.SettingsDelay, logger)
	if err != nil {
		closer.Close()
		return nil, err
	}

	tools, err := registry.New()
	if err != nil {
		closer.Close()
		return nil, err
	}
	if err := toolinit.RegisterAll(tools, toolinit.DefaultOptions()); err != nil {
		closer.Close()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		logCloser: closer,
		settings:  settings,
		providers: provider.Default(provider.WithEnvFile(cfg.EnvPath())),
		tools:     tools,
	}, nil
}

// history opens the conversation database. A damaged database is backed up
// and recreated after telling the user where the copy goes.
func (a *app) history(ctx context.Context) (*history.Browser, error) {
	if a.browser != nil {
		return a.browser, nil
	}

	notify := func(backup string) error {
		fmt.Fprintf(os.Stderr, "Your conversation database could not be opened. A copy will be saved to %s and a new database created.\n", backup)
		return nil
	}
	store, err := history.Open(ctx, a.cfg.DatabasePath(), notify, history.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	browser, err := history.NewBrowser(store, historyCacheSize)
	if err != nil {
		store.Close()
		return nil, err
	}
	a.store, a.browser = store, browser
	return browser, nil
}

// selection resolves the provider and model from flags, then settings
func (a *app) selection() (providerKey, modelID string, ok bool) {
	s := a.settings.Get()
	providerKey, modelID, ok = s.SelectedModel()
	if providerFlag != "" {
		providerKey = providerFlag
		if modelFlag == "" {
			if d, err := a.providers.Get(providerFlag); err == nil && len(d.KnownModels) > 0 {
				modelID = d.KnownModels[0]
			}
		}
	}
	if modelFlag != "" {
		modelID = modelFlag
	}
	return providerKey, modelID, providerKey != "" && modelID != ""
}

// instantiate authenticates the provider, asking for a key if a prompter is
// given, and builds the model
func (a *app) instantiate(providerKey, modelID string, prompter provider.Prompter) (*provider.Handle, error) {
	if err := a.providers.Authenticate(providerKey, prompter); err != nil {
		return nil, err
	}
	return a.providers.Instantiate(providerKey, modelID)
}

func (a *app) newSession(model *provider.Handle, opts ...chat.Option) *chat.Session {
	base := []chat.Option{
		chat.WithSystemPrompt(a.settings.Get().SystemPrompt),
		chat.WithTools(a.tools),
		chat.WithLogger(a.logger),
		chat.WithPersistDelay(a.cfg.PersistDelay),
	}
	if model != nil {
		base = append(base, chat.WithModel(model))
	}
	return chat.New(append(base, opts...)...)
}

func (a *app) Close() {
	if err := a.settings.Close(); err != nil {
		a.logger.Error().Err(err).Msg("failed to save settings")
	}
	if a.browser != nil {
		a.browser.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error().Err(err).Msg("failed to close database")
		}
	}
	a.logCloser.Close()
}
