/*
Copyright © 2025 matthewtan01
*/
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/matthewtan01/pdf-rag/config"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pdf-rag",
	Short: "Ask questions about your PDF documents",
	Long: `pdf-rag extracts the text of uploaded PDF documents, indexes it and
answers questions about it with a large language model, keeping the
conversation history of every session.

Run "pdf-rag start" for the HTTP/WebSocket server or "pdf-rag chat" for a
terminal conversation over local files.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml or $HOME/.pdf-rag.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn or error")
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig locates the config file when --config is not given. Running
// without any file is allowed; defaults and the environment still apply.
func initConfig() {
	if cfgFile != "" {
		return
	}
	candidates := []string{filepath.Join("config", "config.yaml")}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".pdf-rag.yaml"))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			cfgFile = path
			fmt.Fprintln(os.Stderr, "Using config file:", path)
			return
		}
	}
}

// loadConfig reads and validates the configuration for a command.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	if level := viper.GetString("log_level"); level != "" {
		cfg.LogLevel = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
