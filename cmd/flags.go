package cmd

import (
	"github.com/spf13/pflag"

	"mcu-image-pipeline/cmd/util"
	"mcu-image-pipeline/internal/config"
)

func deviceFlags(flags *pflag.FlagSet) []util.Binding {
	d := config.DefaultConfig().Device

	flags.Int("max-width", d.MaxWidth, "widest frame the workspace is sized for")
	flags.Int("max-height", d.MaxHeight, "tallest frame the workspace is sized for")
	flags.Int("frame-width", d.FrameWidth, "width of the frames requested from the host")
	flags.Int("frame-height", d.FrameHeight, "height of the frames requested from the host")
	flags.Int("kernel-size", d.KernelSize, "odd side length of the square structuring element")

	return []util.Binding{
		{Key: "device.max_width", Flag: "max-width"},
		{Key: "device.max_height", Flag: "max-height"},
		{Key: "device.frame_width", Flag: "frame-width"},
		{Key: "device.frame_height", Flag: "frame-height"},
		{Key: "device.kernel_size", Flag: "kernel-size"},
	}
}

func linkFlags(flags *pflag.FlagSet) []util.Binding {
	l := config.DefaultConfig().Link

	flags.String("port", l.Port, "serial port, e.g. /dev/ttyACM0 or COM6")
	flags.Int("baud-rate", l.BaudRate, "serial baud rate (8N1)")
	flags.Duration("poll-timeout", l.PollTimeout, "how long the device waits for a frame before skipping a stage")

	return []util.Binding{
		{Key: "link.port", Flag: "port"},
		{Key: "link.baud_rate", Flag: "baud-rate"},
		{Key: "link.poll_timeout", Flag: "poll-timeout"},
	}
}

func hostFlags(flags *pflag.FlagSet) []util.Binding {
	h := config.DefaultConfig().Host

	flags.String("gray-image", h.GrayImage, "image sent for the grayscale stage (defaults to the color image)")
	flags.String("color-image", h.ColorImage, "image sent for the color stage")
	flags.String("binary-image", h.BinaryImage, "image sent for the morphology stages (defaults to the first result)")
	flags.String("output-dir", h.OutputDir, "directory the results are written to")
	flags.Duration("open-timeout", h.OpenTimeout, "how long to wait for the serial port to appear")
	flags.Duration("result-timeout", h.ResultTimeout, "how long to wait for the last stage's result before ending the session (0 waits forever)")

	return []util.Binding{
		{Key: "host.gray_image", Flag: "gray-image"},
		{Key: "host.color_image", Flag: "color-image"},
		{Key: "host.binary_image", Flag: "binary-image"},
		{Key: "host.output_dir", Flag: "output-dir"},
		{Key: "host.open_timeout", Flag: "open-timeout"},
		{Key: "host.result_timeout", Flag: "result-timeout"},
	}
}

func metricsFlags(flags *pflag.FlagSet) []util.Binding {
	flags.String("metrics-addr", config.DefaultConfig().Metrics.Addr, "serve Prometheus metrics on this address, e.g. :9090")

	return []util.Binding{
		{Key: "metrics.addr", Flag: "metrics-addr"},
	}
}
