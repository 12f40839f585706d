package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mcu-image-pipeline/cmd/util"
	"mcu-image-pipeline/internal/core"
	"mcu-image-pipeline/internal/transport"
)

// NewDeviceCommand runs the pipeline controller against a serial port.
func NewDeviceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Run the six-stage pipeline over a serial link",
		Long: `Run the six-stage pipeline over a serial link.

Each stage asks the host for one frame, processes it and sends the result
back. A stage whose frame does not arrive within the poll timeout is skipped.
After the last stage the device idles; send SIGHUP to reset it and start a
new session.`,
		Args: cobra.NoArgs,
		RunE: runDevice,
	}

	flags := cmd.Flags()
	var bindings []util.Binding
	bindings = append(bindings, deviceFlags(flags)...)
	bindings = append(bindings, linkFlags(flags)...)
	bindings = append(bindings, metricsFlags(flags)...)
	cmd.PreRun = func(cmd *cobra.Command, _ []string) {
		util.BindAll(cmd.Flags(), bindings)
	}

	return cmd
}

func runDevice(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := readConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequirePort(); err != nil {
		return err
	}

	port, err := transport.OpenSerial(cfg.Link.Port, cfg.Link.BaudRate)
	if err != nil {
		return err
	}
	defer port.Close()

	logger.WithFields(logrus.Fields{
		"port":      cfg.Link.Port,
		"baud_rate": cfg.Link.BaudRate,
	}).Info("Serial port opened")

	recorder, stopMetrics := newRecorder(cfg.Metrics.Addr, logger)
	defer stopMetrics()

	link := transport.NewSerial(port, cfg.Link.PollTimeout, logger)
	controller, err := core.NewController(cfg.Controller(), link, logger, recorder)
	if err != nil {
		return fmt.Errorf("create controller: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resets := make(chan os.Signal, 1)
	signal.Notify(resets, syscall.SIGHUP)
	defer signal.Stop(resets)

	return serveSessions(ctx, controller, resets, logger)
}

// serveSessions runs the pipeline, then idles until a reset arrives or ctx
// is done.
func serveSessions(ctx context.Context, controller *core.Controller, resets <-chan os.Signal, logger logrus.FieldLogger) error {
	for {
		reports, err := controller.Run(ctx)
		logReports(logger, reports)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("Device shutting down")
				return nil
			}
			return err
		}

		select {
		case <-ctx.Done():
			logger.Info("Device shutting down")
			return nil
		case <-resets:
			controller.Reset()
		}
	}
}

func logReports(logger logrus.FieldLogger, reports []core.StageReport) {
	counts := map[core.Outcome]int{}
	for _, r := range reports {
		counts[r.Outcome]++
	}
	logger.WithFields(logrus.Fields{
		"processed": counts[core.OutcomeProcessed],
		"skipped":   counts[core.OutcomeSkipped],
		"failed":    len(reports) - counts[core.OutcomeProcessed] - counts[core.OutcomeSkipped],
	}).Info("Session summary")
}
