package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.bug.st/serial"

	"mcu-image-pipeline/cmd/util"
	"mcu-image-pipeline/internal/config"
	"mcu-image-pipeline/internal/host"
	imageio "mcu-image-pipeline/internal/io"
	"mcu-image-pipeline/internal/transport"
)

// NewHostCommand runs the PC companion of a device session.
func NewHostCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Serve images to the device and store its results",
		Long: `Serve images to the device and store its results.

The host answers each frame request of the device with the image planned for
that stage, resized and converted to the requested format, and writes every
returned frame to <output-dir>/<stage>_result.png.`,
		Args: cobra.NoArgs,
		RunE: runHost,
	}

	flags := cmd.Flags()
	var bindings []util.Binding
	bindings = append(bindings, linkFlags(flags)...)
	bindings = append(bindings, hostFlags(flags)...)
	cmd.PreRun = func(cmd *cobra.Command, _ []string) {
		util.BindAll(cmd.Flags(), bindings)
	}

	return cmd
}

func runHost(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := readConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequirePort(); err != nil {
		return err
	}
	files, err := hostFiles(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Host.OutputDir, 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	port, err := openPortWithRetry(ctx, cfg.Link.Port, cfg.Link.BaudRate, cfg.Host.OpenTimeout, logger)
	if err != nil {
		return err
	}
	defer port.Close()
	if err := port.SetReadTimeout(transport.NoTimeout); err != nil {
		return fmt.Errorf("set read timeout: %w", err)
	}

	// Reads block until the device talks; closing the port unblocks them.
	stopClose := context.AfterFunc(ctx, func() { port.Close() })
	defer stopClose()

	loader := imageio.NewImageLoader(logger)
	companion := host.NewCompanion(port, loader, loader, files, cfg.Host.OutputDir, logger).
		WithResultTimeout(cfg.Host.ResultTimeout)

	logger.WithFields(logrus.Fields{
		"port":       cfg.Link.Port,
		"output_dir": cfg.Host.OutputDir,
	}).Info("Waiting for device requests")

	results, err := companion.Run(ctx)
	if err != nil && ctx.Err() == nil {
		return err
	}
	logger.WithField("results", len(results)).Info("Host finished")
	return nil
}

func hostFiles(cfg *config.Config) (host.Files, error) {
	files := host.Files{
		Gray:   cfg.Host.GrayImage,
		Color:  cfg.Host.ColorImage,
		Binary: cfg.Host.BinaryImage,
	}
	if files.Color == "" {
		return files, errors.New("config 'host.color_image' must be set")
	}
	return files, nil
}

// openPortWithRetry waits for the device's serial port to appear, e.g. while
// the board is still enumerating over USB.
func openPortWithRetry(ctx context.Context, name string, baudRate int, timeout time.Duration, logger logrus.FieldLogger) (serial.Port, error) {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = timeout

	var port serial.Port
	attempt := 1
	err := backoff.Retry(func() error {
		p, err := transport.OpenSerial(name, baudRate)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"port":    name,
				"attempt": attempt,
			}).Info("Waiting for serial port")
			attempt++
			return err
		}
		port = p
		return nil
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}

	return port, nil
}
