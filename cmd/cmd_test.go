package cmd

import (
	"bytes"
	"context"
	"image"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/image/tiff"

	"mcu-image-pipeline/internal/core"
	"mcu-image-pipeline/internal/transport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestRoot(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	// Keep config files on this machine out of the test.
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	root := NewRootCommand()
	root.AddCommand(NewDeviceCommand(), NewHostCommand(), NewSimulateCommand(), NewPrepareCommand(), NewConvertCommand(), NewListCommand())
	root.SetArgs(args)
	return root
}

func TestInitLogger(t *testing.T) {
	debug := initLogger(true)
	require.Equal(t, logrus.DebugLevel, debug.GetLevel())
	require.IsType(t, &logrus.TextFormatter{}, debug.Formatter)

	info := initLogger(false)
	require.Equal(t, logrus.InfoLevel, info.GetLevel())
	require.IsType(t, &logrus.JSONFormatter{}, info.Formatter)
}

func TestDeviceRequiresPort(t *testing.T) {
	root := newTestRoot(t, "device")
	require.ErrorContains(t, root.Execute(), "link.port")
}

func TestDeviceRejectsEvenKernel(t *testing.T) {
	root := newTestRoot(t, "device", "--port", "/dev/null", "--kernel-size", "4")
	require.ErrorContains(t, root.Execute(), "device.kernel_size")
}

func TestHostRequiresColorImage(t *testing.T) {
	root := newTestRoot(t, "host", "--port", "/dev/ttyACM0")
	require.ErrorContains(t, root.Execute(), "host.color_image")
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	root := newTestRoot(t, "device", "--frame-width", "200")
	t.Setenv("IMGPIPE_DEVICE_FRAME_WIDTH", "64")
	require.ErrorContains(t, root.Execute(), "frame 200x128 exceeds")
}

func TestConfigFileFlag(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("device:\n  kernel_size: 6\n"), 0o600))

	root := newTestRoot(t, "device", "--config", path, "--port", "/dev/null")
	require.ErrorContains(t, root.Execute(), "device.kernel_size")
}

func TestConvertTIFFToPNG(t *testing.T) {
	root := newTestRoot(t, "convert", "tiff2png")

	f, err := os.Create("mandrill.tiff")
	require.NoError(t, err)
	require.NoError(t, tiff.Encode(f, image.NewGray(image.Rect(0, 0, 4, 4)), nil))
	require.NoError(t, f.Close())

	require.NoError(t, root.Execute())
	require.FileExists(t, "mandrill.png")
}

func TestConvertTIFFToPNGReportsFailures(t *testing.T) {
	root := newTestRoot(t, "convert", "tiff2png", "missing.tiff")
	require.ErrorContains(t, root.Execute(), "1 of 1 files failed")
}

func TestSimulateWritesResults(t *testing.T) {
	out := t.TempDir()
	root := newTestRoot(t, "simulate", "--frame-width", "32", "--frame-height", "32", "--output-dir", out)
	require.NoError(t, root.Execute())

	for _, stage := range core.Stages() {
		require.FileExists(t, filepath.Join(out, stage.String()+"_result.png"))
	}
}

func TestServeSessionsResetsOnSignal(t *testing.T) {
	logger, _ := test.NewNullLogger()
	link := transport.NewLoopback()
	controller, err := core.NewController(core.Config{
		MaxWidth: 4, MaxHeight: 4, FrameWidth: 4, FrameHeight: 4, KernelSize: 3,
	}, link, logger, nil)
	require.NoError(t, err)

	resets := make(chan os.Signal, 1)
	resets <- syscall.SIGHUP

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serveSessions(ctx, controller, resets, logger)
	}()

	require.Eventually(t, func() bool {
		return link.Polls() == 12
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	require.Equal(t, 12, link.Polls())
}

func TestListShowsPipeline(t *testing.T) {
	root := newTestRoot(t, "list", "--frame-width", "32", "--frame-height", "16", "--kernel-size", "5")
	var out bytes.Buffer
	root.SetOut(&out)
	require.NoError(t, root.Execute())

	text := out.String()
	for _, stage := range core.Stages() {
		require.Contains(t, text, stage.String())
	}
	require.Contains(t, text, "otsu(gray->binary)")
	require.Contains(t, text, "kernel_size=")
	require.Contains(t, text, "psnr")
	// Slots are sized by the 128x128 maximum, not the frame.
	require.Regexp(t, `total\s+81920\b`, text)
}
