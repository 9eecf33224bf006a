package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/nachoal/kitgpt-go/internal/coalesce"
)

// DefaultSystemPrompt is used until the user configures one
const DefaultSystemPrompt = "You are a helpful, respectful and honest assistant."

// ChatMode selects how the host presents the conversation
type ChatMode string

const (
	ChatModeChat   ChatMode = "chat"
	ChatModeEditor ChatMode = "editor"
)

// Settings is the durable user state
type Settings struct {
	Provider     string   `json:"provider,omitempty" mapstructure:"provider"`
	ModelID      string   `json:"modelId,omitempty" mapstructure:"modelid"`
	SystemPrompt string   `json:"systemPrompt" mapstructure:"systemprompt"`
	WelcomeShown bool     `json:"welcomeShown" mapstructure:"welcomeshown"`
	ChatMode     ChatMode `json:"chatMode" mapstructure:"chatmode"`
}

// DefaultSettings returns the first-run settings
func DefaultSettings() Settings {
	return Settings{
		SystemPrompt: DefaultSystemPrompt,
		ChatMode:     ChatModeChat,
	}
}

// SelectedModel returns the provider and model pair. A partial pair counts
// as no selection.
func (s Settings) SelectedModel() (provider, modelID string, ok bool) {
	if s.Provider == "" || s.ModelID == "" {
		return "", "", false
	}
	return s.Provider, s.ModelID, true
}

func (s *Settings) normalize() {
	if s.ChatMode != ChatModeChat && s.ChatMode != ChatModeEditor {
		s.ChatMode = ChatModeChat
	}
	if (s.Provider == "") != (s.ModelID == "") {
		s.Provider, s.ModelID = "", ""
	}
}

// SettingsStore keeps settings in memory and writes them through to a JSON
// file after a quiet period.
type SettingsStore struct {
	path   string
	logger zerolog.Logger
	queue  *coalesce.Queue

	mu       sync.Mutex
	settings Settings
	lastErr  error
}

// OpenSettings loads settings from path, falling back to defaults when the file is missing
func OpenSettings(path string, delay time.Duration, logger zerolog.Logger) (*SettingsStore, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	defaults := DefaultSettings()
	v.SetDefault("systemprompt", defaults.SystemPrompt)
	v.SetDefault("chatmode", string(defaults.ChatMode))
	v.SetDefault("welcomeshown", false)

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read settings: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	s.normalize()

	return &SettingsStore{
		path:     path,
		logger:   logger.With().Str("component", "settings").Logger(),
		queue:    coalesce.New(delay),
		settings: s,
	}, nil
}

// Get returns a copy of the current settings
func (s *SettingsStore) Get() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Update applies fn and schedules a write
func (s *SettingsStore) Update(fn func(*Settings)) Settings {
	s.mu.Lock()
	fn(&s.settings)
	s.settings.normalize()
	out := s.settings
	s.mu.Unlock()

	s.queue.Schedule("settings", func() { _ = s.save() })
	return out
}

// SelectModel stores the provider/model pair
func (s *SettingsStore) SelectModel(provider, modelID string) Settings {
	return s.Update(func(st *Settings) {
		st.Provider = provider
		st.ModelID = modelID
	})
}

// Flush writes pending changes now and returns the last write error
func (s *SettingsStore) Flush() error {
	s.queue.Flush("settings")
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Close flushes and stops the store
func (s *SettingsStore) Close() error {
	s.queue.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *SettingsStore) save() error {
	s.mu.Lock()
	snapshot := s.settings
	s.mu.Unlock()

	err := writeJSON(s.path, snapshot)

	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		s.logger.Error().Err(err).Str("path", s.path).Msg("failed to write settings")
		return err
	}
	s.logger.Debug().Str("path", s.path).Msg("settings written")
	return nil
}

// writeJSON replaces path atomically
func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".settings-*.json")
	if err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}
