package cmd

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mcu-image-pipeline/cmd/util"
	"mcu-image-pipeline/internal/config"
	"mcu-image-pipeline/internal/core"
	"mcu-image-pipeline/internal/host"
	imageio "mcu-image-pipeline/internal/io"
	"mcu-image-pipeline/internal/transport"
)

// NewSimulateCommand runs device and host in one process over an in-memory
// link.
func NewSimulateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a full device session against the host in one process",
		Long: `Run a full device session against the host in one process.

Both sides speak the serial protocol over an in-memory pipe. Without any
configured images the host sends a generated test card.`,
		Args: cobra.NoArgs,
		RunE: runSimulate,
	}

	flags := cmd.Flags()
	var bindings []util.Binding
	bindings = append(bindings, deviceFlags(flags)...)
	bindings = append(bindings, hostFlags(flags)...)
	bindings = append(bindings, metricsFlags(flags)...)
	flags.Duration("poll-timeout", config.DefaultPollTimeout, "how long the device waits for a frame before skipping a stage")
	bindings = append(bindings, util.Binding{Key: "link.poll_timeout", Flag: "poll-timeout"})
	cmd.PreRun = func(cmd *cobra.Command, _ []string) {
		util.BindAll(cmd.Flags(), bindings)
	}

	return cmd
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := readConfig()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Host.OutputDir, 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recorder, stopMetrics := newRecorder(cfg.Metrics.Addr, logger)
	defer stopMetrics()

	deviceEnd, hostEnd := net.Pipe()
	defer hostEnd.Close()

	deviceLog := logger.WithField("side", "device")
	hostLog := logger.WithField("side", "host")

	link := transport.NewSerial(transport.NewConnPort(deviceEnd), cfg.Link.PollTimeout, deviceLog)
	controller, err := core.NewController(cfg.Controller(), link, deviceLog, recorder)
	if err != nil {
		deviceEnd.Close()
		return fmt.Errorf("create controller: %w", err)
	}

	loader := imageio.NewImageLoader(hostLog)
	var source host.Source = loader
	files := host.Files{Gray: cfg.Host.GrayImage, Color: cfg.Host.ColorImage, Binary: cfg.Host.BinaryImage}
	if files.Gray == "" && files.Color == "" {
		hostLog.Info("No images configured, sending a generated test card")
		source = host.SyntheticSource{}
	}
	companion := host.NewCompanion(hostEnd, source, loader, files, cfg.Host.OutputDir, hostLog).
		WithResultTimeout(cfg.Host.ResultTimeout)

	var reports []core.StageReport
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Closing the device end tells the host the session is over.
		defer deviceEnd.Close()
		var err error
		reports, err = controller.Run(gctx)
		return err
	})
	g.Go(func() error {
		defer hostEnd.Close()
		_, err := companion.Run(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	for _, r := range reports {
		fields := logrus.Fields{
			"stage":    r.Stage.String(),
			"outcome":  string(r.Outcome),
			"duration": r.Duration.String(),
		}
		if level, ok := r.Threshold(); ok {
			fields["threshold"] = level
		}
		logger.WithFields(fields).Info("Stage report")
	}
	logReports(logger, reports)
	return nil
}
