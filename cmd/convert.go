package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	imageio "mcu-image-pipeline/internal/io"
)

// NewConvertCommand groups the file conversion helpers.
func NewConvertCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "File conversion helpers",
	}
	cmd.AddCommand(newTIFFToPNGCommand())
	return cmd
}

func newTIFFToPNGCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tiff2png [files...]",
		Short: "Convert TIFF images to PNG next to the originals",
		Long: `Convert TIFF images to PNG next to the originals.

Without arguments every .tif and .tiff file in the current directory is
converted; --all descends into subdirectories.`,
		RunE: runTIFFToPNG,
	}
	cmd.Flags().BoolP("all", "a", false, "convert TIFF files in subdirectories too")
	return cmd
}

func runTIFFToPNG(cmd *cobra.Command, args []string) error {
	logger := initLogger(viper.GetBool("log.debug"))
	recursive, _ := cmd.Flags().GetBool("all")

	files := args
	if len(files) == 0 {
		found, err := imageio.FindTIFFs(".", recursive)
		if err != nil {
			return fmt.Errorf("search for TIFF files: %w", err)
		}
		if len(found) == 0 {
			logger.Info("No TIFF files found")
			return nil
		}
		files = found
	}

	converted := 0
	for _, src := range files {
		if err := imageio.ConvertTIFFToPNG(src, imageio.TIFFToPNGPath(src), logger); err != nil {
			logger.WithError(err).WithField("src", src).Error("Conversion failed")
			continue
		}
		converted++
	}

	logger.WithFields(logrus.Fields{
		"converted": converted,
		"total":     len(files),
	}).Info("Conversion complete")

	if converted < len(files) {
		return fmt.Errorf("%d of %d files failed to convert", len(files)-converted, len(files))
	}
	return nil
}
