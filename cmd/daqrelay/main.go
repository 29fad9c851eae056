package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/daqrelay/internal/config"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "daqrelay",
	Short: "Web relay for DAQ module buses",
	Long: "daqrelay subscribes to the status, data and events channels of a set of\n" +
		"data-acquisition modules, fans the traffic out to browser sessions over\n" +
		"websockets, and pushes operator commands back to the modules.",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "f", "config.json", "configuration file")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
