package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nachoal/kitgpt-go/chat"
	"github.com/nachoal/kitgpt-go/config"
	"github.com/nachoal/kitgpt-go/provider"
	"github.com/nachoal/kitgpt-go/tui"
)

const welcomeText = "Welcome to kitgpt! Type a message and press Enter. " +
	"Press Esc to stop a response, Ctrl+N for a new conversation and Alt+1..9 to use a suggestion."

func runTUI(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := openApp(appOptions{logToFile: true})
	if err != nil {
		return err
	}
	defer a.Close()

	browser, err := a.history(ctx)
	if err != nil {
		return err
	}

	var resumeID int64
	switch {
	case continueConv:
		list, err := browser.List(ctx)
		if err != nil {
			return err
		}
		if len(list) > 0 {
			resumeID = list[0].ID
		}
	case resume:
		list, err := browser.List(ctx)
		if err != nil {
			return err
		}
		picker := tui.NewConversationPicker(list)
		if _, err := tea.NewProgram(picker).Run(); err != nil {
			return fmt.Errorf("error running conversation picker: %w", err)
		}
		resumeID = picker.SelectedID
	}

	model, err := a.chooseModel()
	if err != nil {
		return err
	}
	defer model.Close()

	bridge := tui.NewBridge()
	session := a.newSession(model, chat.WithObserver(bridge.Observe))
	defer session.Close()
	defer bridge.Stop()

	if resumeID != 0 {
		if err := session.Load(ctx, resumeID); err != nil {
			return err
		}
	}

	opts := []tui.Option{tui.WithTheme(a.cfg.Theme)}
	if !a.settings.Get().WelcomeShown {
		opts = append(opts, tui.WithNotice(welcomeText))
		a.settings.Update(func(s *config.Settings) { s.WelcomeShown = true })
	}

	p := tea.NewProgram(tui.New(session, bridge, opts...), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}

// chooseModel returns the selected model. Without a selection the model
// picker runs first and the choice is saved. A nil handle means the user
// left without choosing.
func (a *app) chooseModel() (*provider.Handle, error) {
	providerKey, modelID, ok := a.selection()
	if !ok {
		selector := tui.NewModelSelector(a.providers)
		if _, err := tea.NewProgram(selector, tea.WithAltScreen()).Run(); err != nil {
			return nil, fmt.Errorf("error running model selector: %w", err)
		}
		item, chosen := selector.Selected()
		if !chosen {
			return nil, nil
		}
		providerKey, modelID = item.ProviderKey, item.ModelID
		a.settings.SelectModel(providerKey, modelID)
	}

	return a.instantiate(providerKey, modelID, provider.NewTerminalPrompter())
}
