package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/susa-must-flow/internal/cli"
	"github.com/Veraticus/susa-must-flow/internal/common"
	"github.com/Veraticus/susa-must-flow/internal/config"
)

var (
	cfgFile   string
	version   = "dev"
	logCloser io.Closer
	rootCmd   = &cobra.Command{
		Use:   "susa",
		Short: "📊 SUSA KPI analysis client",
		Long: `susa uploads SUSA trial balances to the KPI analysis backend, helps you map
unknown accounts to cost categories, and fetches the finished reports.

Start the interactive dashboard with "susa dashboard".`,
		PersistentPreRunE: initConfig,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}
)

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.config/susa/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().String("api-url", "", "backend API base URL")

	// Bind flags to viper
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("api.url", rootCmd.PersistentFlags().Lookup("api-url"))

	// Add commands
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(sheetsLoginCmd())
	rootCmd.AddCommand(projectsCmd())
	rootCmd.AddCommand(uploadCmd())
	rootCmd.AddCommand(selectCmd())
	rootCmd.AddCommand(mapCmd())
	rootCmd.AddCommand(resultsCmd())
	rootCmd.AddCommand(renameCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(downloadCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(proxyCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(versionCmd())
}

func main() {
	interrupts := cli.NewInterruptHandler(os.Stderr)
	ctx, cancel := context.WithCancel(context.Background())
	ctx = interrupts.HandleInterrupts(ctx, "")

	err := rootCmd.ExecuteContext(ctx)
	cancel() // Always cleanup
	if logCloser != nil {
		_ = logCloser.Close()
	}

	if err != nil {
		if interrupts.WasInterrupted() && errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		if errors.Is(err, errOperationFailed) {
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, cli.FormatError(common.Message(err)))
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	// Set up config file
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}

		// Search for config in standard locations
		viper.AddConfigPath(fmt.Sprintf("%s/.config/susa", home))
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	config.SetDefaults(viper.GetViper())
	config.BindEnv(viper.GetViper())

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	if err := setupLogging(""); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}

	return nil
}

// setupLogging installs the global logger. An empty path logs to stderr; the
// dashboard passes logging.file so log lines do not tear through the UI.
func setupLogging(path string) error {
	level, err := common.ParseLevel(viper.GetString("logging.level"))
	if err != nil {
		return err
	}

	closer, err := common.SetupLogger(level, viper.GetString("logging.format"), path)
	if err != nil {
		return err
	}
	if logCloser != nil {
		_ = logCloser.Close()
	}
	logCloser = closer

	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			slog.Info("susa version", "version", version)
		},
	}
}
