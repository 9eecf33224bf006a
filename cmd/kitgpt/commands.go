package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nachoal/kitgpt-go/config"
	"github.com/nachoal/kitgpt-go/llm"
	"github.com/nachoal/kitgpt-go/provider"
	"github.com/nachoal/kitgpt-go/tui"
)

var (
	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Browse saved conversations",
	}

	historyListCmd = &cobra.Command{
		Use:   "list",
		Short: "List conversations, newest first",
		Args:  cobra.NoArgs,
		RunE:  listHistory,
	}

	historyShowCmd = &cobra.Command{
		Use:   "show <id>",
		Short: "Print a conversation",
		Args:  cobra.ExactArgs(1),
		RunE:  showHistory,
	}

	historyDeleteCmd = &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE:  deleteHistory,
	}

	providersCmd = &cobra.Command{
		Use:   "providers",
		Short: "Provider management commands",
	}

	providersListCmd = &cobra.Command{
		Use:   "list",
		Short: "List providers and their models",
		Args:  cobra.NoArgs,
		RunE:  listProviders,
	}

	providersLoginCmd = &cobra.Command{
		Use:   "login <provider>",
		Short: "Enter and save the API key of a provider",
		Args:  cobra.ExactArgs(1),
		RunE:  loginProvider,
	}

	providersTestCmd = &cobra.Command{
		Use:   "test [provider...]",
		Short: "Check that authenticated providers respond",
		RunE:  testProviders,
	}

	modelCmd = &cobra.Command{
		Use:   "model",
		Short: "Show the selected model",
		Args:  cobra.NoArgs,
		RunE:  showModel,
	}

	modelSetCmd = &cobra.Command{
		Use:   "set <provider> <model>",
		Short: "Select the model used for new conversations",
		Args:  cobra.ExactArgs(2),
		RunE:  setModel,
	}

	modelSelectCmd = &cobra.Command{
		Use:   "select",
		Short: "Pick the model from a list",
		Args:  cobra.NoArgs,
		RunE:  selectModel,
	}

	promptCmd = &cobra.Command{
		Use:   "prompt",
		Short: "Show the system prompt",
		Args:  cobra.NoArgs,
		RunE:  showPrompt,
	}

	promptSetCmd = &cobra.Command{
		Use:   "set <text>",
		Short: "Replace the system prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE:  setPrompt,
	}

	promptResetCmd = &cobra.Command{
		Use:   "reset",
		Short: "Restore the default system prompt",
		Args:  cobra.NoArgs,
		RunE:  resetPrompt,
	}

	modeCmd = &cobra.Command{
		Use:       "mode [chat|editor]",
		Short:     "Show or set the chat mode",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{string(config.ChatModeChat), string(config.ChatModeEditor)},
		RunE:      chatMode,
	}

	toolsCmd = &cobra.Command{
		Use:   "tools",
		Short: "Tool management commands",
	}

	listToolsCmd = &cobra.Command{
		Use:   "list",
		Short: "List available tools",
		Args:  cobra.NoArgs,
		RunE:  listTools,
	}
)

func init() {
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyDeleteCmd)
	providersCmd.AddCommand(providersListCmd, providersLoginCmd, providersTestCmd)
	modelCmd.AddCommand(modelSetCmd, modelSelectCmd)
	promptCmd.AddCommand(promptSetCmd, promptResetCmd)
	toolsCmd.AddCommand(listToolsCmd)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid conversation id %q", arg)
	}
	return id, nil
}

func listHistory(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	a, err := openApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	browser, err := a.history(ctx)
	if err != nil {
		return err
	}
	list, err := browser.List(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No conversations yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tTITLE")
	for _, c := range list {
		fmt.Fprintf(w, "%d\t%s\t%s\n", c.ID, c.Started.Local().Format("2006-01-02 15:04"), c.Title)
	}
	return w.Flush()
}

func showHistory(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)
	a, err := openApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	browser, err := a.history(ctx)
	if err != nil {
		return err
	}
	c, err := browser.Get(ctx, id)
	if err != nil {
		return err
	}

	fmt.Printf("# %s\n\n", c.Title)
	for _, msg := range c.Messages {
		label := "Assistant"
		switch msg.Role {
		case llm.RoleUser:
			label = "You"
		case llm.RoleSystem:
			label = "System"
		case llm.RoleTool:
			label = "Tool"
		}
		fmt.Printf("%s:\n%s\n\n", label, msg.Text())
	}
	return nil
}

func deleteHistory(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)
	a, err := openApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	browser, err := a.history(ctx)
	if err != nil {
		return err
	}
	if err := browser.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Printf("Deleted conversation %d\n", id)
	return nil
}

func listProviders(cmd *cobra.Command, args []string) error {
	a, err := openApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	for _, d := range a.providers.List() {
		mark := "✗"
		if a.providers.Authenticated(d.Key) {
			mark = "✓"
		}
		fmt.Printf("%s %-22s %s\n", mark, d.Key, d.Name)
		if d.EnvVar != "" {
			fmt.Printf("    key:    %s\n", d.EnvVar)
		}
		if d.UsageURL != "" {
			fmt.Printf("    usage:  %s\n", d.UsageURL)
		}
		fmt.Printf("    models: %s\n", strings.Join(d.KnownModels, ", "))
	}
	return nil
}

func loginProvider(cmd *cobra.Command, args []string) error {
	a, err := openApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	d, err := a.providers.Get(args[0])
	if err != nil {
		return err
	}
	if err := a.providers.Authenticate(d.Key, provider.NewTerminalPrompter()); err != nil {
		return err
	}
	fmt.Printf("%s is ready.\n", d.Name)
	return nil
}

// testProviders checks the named providers, or every authenticated one,
// using the selected model where it belongs to the provider and the first
// known model otherwise
func testProviders(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	a, err := openApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	keys := args
	if len(keys) == 0 {
		for _, d := range a.providers.List() {
			if a.providers.Authenticated(d.Key) {
				keys = append(keys, d.Key)
			}
		}
	}
	if len(keys) == 0 {
		fmt.Println("No authenticated providers. Run `kitgpt providers login <provider>` first.")
		return nil
	}

	selectedKey, selectedModel, _ := a.selection()
	var handles []*provider.Handle
	for _, key := range keys {
		d, err := a.providers.Get(key)
		if err != nil {
			return err
		}
		modelID := selectedModel
		if key != selectedKey || modelID == "" {
			if len(d.KnownModels) == 0 {
				fmt.Printf("✗ %s: no known models\n", d.Name)
				continue
			}
			modelID = d.KnownModels[0]
		}
		h, err := a.providers.Instantiate(key, modelID)
		if err != nil {
			fmt.Printf("✗ %s: %v\n", d.Name, err)
			continue
		}
		defer h.Close()
		handles = append(handles, h)
	}

	failed := 0
	for _, res := range provider.TestAll(ctx, handles) {
		if res.OK {
			fmt.Printf("✓ %s\n", res.Handle)
			continue
		}
		failed++
		fmt.Printf("✗ %s: %v\n", res.Handle, res.Err)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d providers failed", failed, len(handles))
	}
	return nil
}

func showModel(cmd *cobra.Command, args []string) error {
	a, err := openApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	providerKey, modelID, ok := a.selection()
	if !ok {
		fmt.Println("No model selected. Run `kitgpt model select`.")
		return nil
	}
	fmt.Printf("%s - %s\n", providerKey, modelID)
	return nil
}

func setModel(cmd *cobra.Command, args []string) error {
	a, err := openApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	d, err := a.providers.Get(args[0])
	if err != nil {
		return err
	}
	a.settings.SelectModel(d.Key, args[1])
	fmt.Printf("Selected %s - %s\n", d.Key, args[1])
	return a.settings.Flush()
}

func selectModel(cmd *cobra.Command, args []string) error {
	a, err := openApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	selector := tui.NewModelSelector(a.providers)
	if _, err := tea.NewProgram(selector, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("error running model selector: %w", err)
	}
	item, ok := selector.Selected()
	if !ok {
		return nil
	}
	if err := a.providers.Authenticate(item.ProviderKey, provider.NewTerminalPrompter()); err != nil {
		return err
	}
	a.settings.SelectModel(item.ProviderKey, item.ModelID)
	fmt.Printf("Selected %s - %s\n", item.ProviderKey, item.ModelID)
	return a.settings.Flush()
}

func showPrompt(cmd *cobra.Command, args []string) error {
	a, err := openApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Println(a.settings.Get().SystemPrompt)
	return nil
}

func setPrompt(cmd *cobra.Command, args []string) error {
	return updateSettings(func(s *config.Settings) {
		s.SystemPrompt = strings.Join(args, " ")
	})
}

func resetPrompt(cmd *cobra.Command, args []string) error {
	return updateSettings(func(s *config.Settings) {
		s.SystemPrompt = config.DefaultSystemPrompt
	})
}

func chatMode(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		a, err := openApp(appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()
		fmt.Println(a.settings.Get().ChatMode)
		return nil
	}

	mode := config.ChatMode(args[0])
	if mode != config.ChatModeChat && mode != config.ChatModeEditor {
		return fmt.Errorf("unknown chat mode %q", args[0])
	}
	return updateSettings(func(s *config.Settings) { s.ChatMode = mode })
}

func updateSettings(fn func(*config.Settings)) error {
	a, err := openApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	a.settings.Update(fn)
	return a.settings.Flush()
}

func listTools(cmd *cobra.Command, args []string) error {
	a, err := openApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	icons := map[string]string{
		"calculate": "🧮",
		"wikipedia": "📚",
	}

	fmt.Println("Available tools:")
	for _, name := range a.tools.Names() {
		tool, err := a.tools.Get(name)
		if err != nil {
			continue
		}
		icon := icons[name]
		if icon == "" {
			icon = "🔧"
		}
		fmt.Printf("  %s %-15s - %s\n", icon, name, tool.Description())
	}
	return nil
}
