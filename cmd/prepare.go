package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"mcu-image-pipeline/cmd/util"
	imageio "mcu-image-pipeline/internal/io"
)

// NewPrepareCommand converts a color image into a device-sized grayscale file.
func NewPrepareCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prepare <input> <output>",
		Short: "Convert a color image to a frame-sized grayscale image",
		Long: `Convert a color image to a frame-sized grayscale image.

The image is converted with BT.601 luma weights and resized to the configured
frame size with area interpolation, ready to be sent for the grayscale stage.`,
		Args: cobra.ExactArgs(2),
		RunE: runPrepare,
	}

	flags := cmd.Flags()
	bindings := deviceFlags(flags)
	cmd.PreRun = func(cmd *cobra.Command, _ []string) {
		util.BindAll(cmd.Flags(), bindings)
	}

	return cmd
}

func runPrepare(_ *cobra.Command, args []string) error {
	cfg, logger, err := readConfig()
	if err != nil {
		return err
	}
	src, dst := args[0], args[1]
	if src == dst {
		return errors.New("input and output must differ")
	}

	loader := imageio.NewImageLoader(logger)
	return loader.PrepareGrayscale(src, dst, cfg.Device.FrameWidth, cfg.Device.FrameHeight)
}
