// Package cmd contains all the commands included in the binary file.
package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mcu-image-pipeline/cmd/util"
	"mcu-image-pipeline/internal/config"
)

const AppVersion = "1.0.0"

// NewRootCommand enables all children commands to read flags from CLI flags, environment variables prefixed with IMGPIPE, or imgpipe.yaml (in that order).
func NewRootCommand() *cobra.Command {
	config.Configure(viper.GetViper())

	rootCmd := &cobra.Command{
		Use:     "imgpipe",
		Short:   "Binarization and morphology pipeline for a microcontroller image link",
		Version: AppVersion,
		Long: `imgpipe runs a fixed six-stage image pipeline: Otsu binarization of a grayscale
frame, Otsu binarization of an RGB565 frame, then erosion, dilation, opening and
closing of a binary frame.

The device command drives the pipeline over a serial link; the host command is
its PC companion that sends the source images and stores the results.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if path, _ := cmd.Flags().GetString("config"); path != "" {
				viper.SetConfigFile(path)
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default is imgpipe.yaml in ., $HOME/.imgpipe or /etc/imgpipe)")
	flags.Bool("debug", false, "enable debug mode with verbose logging")
	util.MustBindPFlag("log.debug", flags.Lookup("debug"))

	return rootCmd
}

// readConfig loads and verifies the configuration and builds the logger.
func readConfig() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, nil, err
	}

	logger := initLogger(cfg.Log.Debug)
	if err := cfg.Verify(); err != nil {
		return nil, logger, err
	}

	return cfg, logger, nil
}

// initLogger initializes the logger with appropriate level
func initLogger(debugMode bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if debugMode {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
		logger.Debug("Debug logging enabled")
	} else {
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	return logger
}
