package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Flags
	providerFlag string
	modelFlag    string
	continueConv bool
	resume       bool

	rootCmd = &cobra.Command{
		Use:           "kitgpt",
		Short:         "Chat with language models from your terminal",
		Long:          "kitgpt - a streaming chat client for several model providers with local history, follow-up suggestions and tools",
		RunE:          runTUI,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&providerFlag, "provider", "", "provider key, e.g. openai.chat (overrides the saved selection)")
	rootCmd.PersistentFlags().StringVar(&modelFlag, "model", "", "model id (overrides the saved selection)")
	rootCmd.PersistentFlags().String("data-dir", "", "directory for the database, settings and .env (default ~/.kitgpt)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "log format: console or json")
	rootCmd.PersistentFlags().String("theme", "", "color theme: default, dracula or nord")

	rootCmd.Flags().BoolVarP(&continueConv, "continue", "c", false, "continue the most recent conversation")
	rootCmd.Flags().BoolVarP(&resume, "resume", "r", false, "pick a conversation to resume")

	// Bind flags to viper
	for key, flag := range map[string]string{
		"data_dir":   "data-dir",
		"log_level":  "log-level",
		"log_format": "log-format",
		"theme":      "theme",
	} {
		_ = viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag))
	}

	rootCmd.AddCommand(askCmd, historyCmd, providersCmd, modelCmd, promptCmd, modeCmd, toolsCmd)
}

func main() {
	// A .env in the working directory is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
