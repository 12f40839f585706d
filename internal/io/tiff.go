package io

import (
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/image/tiff"
)

// TIFFToPNGPath returns the PNG path next to a TIFF file.
func TIFFToPNGPath(src string) string {
	return strings.TrimSuffix(src, filepath.Ext(src)) + ".png"
}

// ConvertTIFFToPNG re-encodes a TIFF file as PNG. Images with alpha are
// flattened onto white.
func ConvertTIFFToPNG(src, dst string, logger logrus.FieldLogger) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	img, err := tiff.Decode(in)
	if err != nil {
		return fmt.Errorf("decode %s: %w", src, err)
	}

	switch img.(type) {
	case *image.NRGBA, *image.RGBA, *image.NRGBA64, *image.RGBA64:
		img = flatten(img)
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if err := png.Encode(out, img); err != nil {
		out.Close()
		return fmt.Errorf("encode %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}

	b := img.Bounds()
	logger.WithFields(logrus.Fields{
		"src":    src,
		"dst":    dst,
		"width":  b.Dx(),
		"height": b.Dy(),
	}).Info("TIFF converted")
	return nil
}

func flatten(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, image.White, image.Point{}, draw.Src)
	draw.Draw(dst, b, img, b.Min, draw.Over)
	return dst
}

// FindTIFFs lists .tif and .tiff files in dir, descending into
// subdirectories when recursive is set.
func FindTIFFs(dir string, recursive bool) ([]string, error) {
	var found []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".tif", ".tiff":
			found = append(found, path)
		}
		return nil
	})
	return found, err
}
