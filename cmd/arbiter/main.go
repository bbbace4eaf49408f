package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/arbiterhq/arbiter/internal/config"
)

var (
	cfgPath   string
	debugFlag bool
	appConfig *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "arbiter",
	Short: "Multi-participant AI debate orchestrator",
	Long: `arbiter orchestrates structured debates between AI models and humans.

Create debates on any topic, mix participants from different providers,
and watch synchronized rounds unfold live or over the HTTP API.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(debugFlag)

		var err error
		if cfgPath != "" {
			appConfig, err = config.LoadFrom(cfgPath)
		} else {
			appConfig, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file path (default: ~/.arbiter/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(personasCmd)
	rootCmd.AddCommand(formatsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
}
