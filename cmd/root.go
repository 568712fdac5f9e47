// Package cmd holds the annotation-server command line.
package cmd

import (
	"annotation-server/config"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string

	// cfg is loaded before any subcommand runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "annotation-server",
	Short: "Serve map annotation layers to socket.io clients",
	Long: `annotation-server keeps annotation managers in sync with a scene graph,
broadcasts every scene change to connected clients and persists snapshots.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config.LoadDotEnv()

		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("loglevel") {
			loaded.LogLevel = logLevel
		}

		level, err := logrus.ParseLevel(loaded.LogLevel)
		if err != nil {
			return fmt.Errorf("invalid log level: %w", err)
		}
		logrus.SetLevel(level)
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})

		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_FILE"), "path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "loglevel", config.DefaultLogLevel, "Set the logging level: debug, info, warn, error, fatal, panic")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
