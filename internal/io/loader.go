// Image file loading and saving for the host side of the link
package io

import (
	"fmt"
	"image"
	"strings"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"mcu-image-pipeline/internal/buffer"
)

// ImageLoader reads and writes image files with OpenCV and converts them to
// and from the device's raw frame layouts.
type ImageLoader struct {
	logger logrus.FieldLogger
}

func NewImageLoader(logger logrus.FieldLogger) *ImageLoader {
	return &ImageLoader{
		logger: logger,
	}
}

// LoadImage reads a file as 3-channel BGR. The caller closes the Mat.
func (il *ImageLoader) LoadImage(filepath string) (gocv.Mat, error) {
	il.logger.WithField("filepath", filepath).Debug("Loading image")

	if !isSupportedImageFormat(filepath) {
		return gocv.NewMat(), fmt.Errorf("unsupported image format: %s", filepath)
	}

	mat := gocv.IMRead(filepath, gocv.IMReadColor)
	if mat.Empty() {
		mat.Close()
		return gocv.NewMat(), fmt.Errorf("failed to load image: %s", filepath)
	}

	il.logger.WithFields(logrus.Fields{
		"filepath": filepath,
		"width":    mat.Cols(),
		"height":   mat.Rows(),
		"channels": mat.Channels(),
	}).Debug("Image loaded successfully")

	return mat, nil
}

// Load returns the file resized to width x height with area interpolation
// and converted to enc, as raw frame bytes.
func (il *ImageLoader) Load(filepath string, width, height int, enc buffer.Encoding) ([]byte, error) {
	src, err := il.LoadImage(filepath)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	resized := gocv.NewMat()
	defer resized.Close()
	if err := gocv.Resize(src, &resized, image.Pt(width, height), 0, 0, gocv.InterpolationArea); err != nil {
		return nil, fmt.Errorf("resize %s: %w", filepath, err)
	}

	var code gocv.ColorConversionCode
	switch enc {
	case buffer.Gray8:
		code = gocv.ColorBGRToGray
	case buffer.RGB565:
		code = gocv.ColorBGRToBGR565
	case buffer.RGB888:
		return resized.ToBytes(), nil
	default:
		return nil, fmt.Errorf("unsupported encoding: %s", enc)
	}

	converted := gocv.NewMat()
	defer converted.Close()
	if err := gocv.CvtColor(resized, &converted, code); err != nil {
		return nil, fmt.Errorf("convert %s to %s: %w", filepath, enc, err)
	}

	il.logger.WithFields(logrus.Fields{
		"filepath": filepath,
		"shape":    fmt.Sprintf("%dx%d", width, height),
		"encoding": enc.String(),
	}).Info("Frame prepared")

	return converted.ToBytes(), nil
}

// Save writes a raw frame to filepath. RGB565 frames are expanded to BGR.
func (il *ImageLoader) Save(filepath string, img buffer.Image) error {
	il.logger.WithField("filepath", filepath).Debug("Saving image")

	if !isSupportedImageFormat(filepath) {
		return fmt.Errorf("unsupported image format: %s", filepath)
	}

	var matType gocv.MatType
	switch img.Encoding() {
	case buffer.Gray8:
		matType = gocv.MatTypeCV8UC1
	case buffer.RGB565:
		matType = gocv.MatTypeCV8UC2
	case buffer.RGB888:
		matType = gocv.MatTypeCV8UC3
	default:
		return fmt.Errorf("unsupported encoding: %s", img.Encoding())
	}

	mat, err := gocv.NewMatFromBytes(img.Height(), img.Width(), matType, img.Pixels())
	if err != nil {
		return fmt.Errorf("wrap frame: %w", err)
	}
	defer mat.Close()

	if img.Encoding() == buffer.RGB565 {
		bgr := gocv.NewMat()
		defer bgr.Close()
		if err := gocv.CvtColor(mat, &bgr, gocv.ColorBGR565ToBGR); err != nil {
			return fmt.Errorf("expand rgb565: %w", err)
		}
		return il.SaveImage(bgr, filepath)
	}

	return il.SaveImage(mat, filepath)
}

func (il *ImageLoader) SaveImage(mat gocv.Mat, filepath string) error {
	if mat.Empty() {
		return fmt.Errorf("cannot save empty image")
	}

	if !isSupportedImageFormat(filepath) {
		return fmt.Errorf("unsupported image format: %s", filepath)
	}

	if !gocv.IMWrite(filepath, mat) {
		return fmt.Errorf("failed to save image: %s", filepath)
	}

	il.logger.WithFields(logrus.Fields{
		"filepath": filepath,
		"width":    mat.Cols(),
		"height":   mat.Rows(),
		"channels": mat.Channels(),
	}).Info("Image saved successfully")

	return nil
}

// PrepareGrayscale converts a color file to a width x height grayscale file.
func (il *ImageLoader) PrepareGrayscale(src, dst string, width, height int) error {
	pix, err := il.Load(src, width, height, buffer.Gray8)
	if err != nil {
		return err
	}
	img, err := buffer.NewImage(pix, width, height, buffer.Gray8)
	if err != nil {
		return err
	}
	return il.Save(dst, img)
}

func isSupportedImageFormat(filepath string) bool {
	ext := strings.ToLower(getFileExtension(filepath))
	supportedFormats := []string{".jpg", ".jpeg", ".png", ".tiff", ".tif", ".bmp"}

	for _, format := range supportedFormats {
		if ext == format {
			return true
		}
	}

	return false
}

func getFileExtension(filepath string) string {
	for i := len(filepath) - 1; i >= 0; i-- {
		if filepath[i] == '.' {
			return filepath[i:]
		}
		if filepath[i] == '/' || filepath[i] == '\\' {
			break
		}
	}
	return ""
}
