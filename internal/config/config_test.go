package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"mcu-image-pipeline/internal/buffer"
)

func newViper(t *testing.T, dir string) *viper.Viper {
	t.Helper()
	v := viper.New()
	v.SetConfigName("imgpipe")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	SetDefaults(v)
	return v
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(newViper(t, t.TempDir()))
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
	require.NoError(t, cfg.Verify())
	require.Error(t, cfg.RequirePort())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	content := `
device:
  frame_width: 64
  frame_height: 32
  kernel_size: 5
link:
  port: /dev/ttyACM0
  poll_timeout: 250ms
host:
  gray_image: lena_gray.png
log:
  debug: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "imgpipe.yaml"), []byte(content), 0o600))

	cfg, err := Load(newViper(t, dir))
	require.NoError(t, err)
	require.NoError(t, cfg.Verify())
	require.NoError(t, cfg.RequirePort())

	require.Equal(t, 64, cfg.Device.FrameWidth)
	require.Equal(t, 32, cfg.Device.FrameHeight)
	require.Equal(t, DefaultResolution, cfg.Device.MaxWidth)
	require.Equal(t, 250*time.Millisecond, cfg.Link.PollTimeout)
	require.Equal(t, DefaultBaudRate, cfg.Link.BaudRate)
	require.Equal(t, "lena_gray.png", cfg.Host.GrayImage)
	require.True(t, cfg.Log.Debug)

	ctrl := cfg.Controller()
	require.Equal(t, 5, ctrl.KernelSize)
	require.Equal(t, 64, ctrl.FrameWidth)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("IMGPIPE_LINK_PORT", "/dev/ttyUSB1")
	t.Setenv("IMGPIPE_DEVICE_KERNEL_SIZE", "7")

	v := newViper(t, t.TempDir())
	v.SetEnvPrefix("IMGPIPE")
	v.SetEnvKeyReplacer(envReplacer)
	v.AutomaticEnv()

	cfg, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, "/dev/ttyUSB1", cfg.Link.Port)
	require.Equal(t, 7, cfg.Device.KernelSize)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "imgpipe.yaml"), []byte("device: ["), 0o600))

	_, err := Load(newViper(t, dir))
	require.ErrorContains(t, err, "failed to load config")
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"frame above maximum", func(c *Config) { c.Device.FrameWidth = 129 }, "exceeds the workspace maximum"},
		{"zero frame", func(c *Config) { c.Device.FrameHeight = 0 }, "must be positive"},
		{"oversized workspace", func(c *Config) { c.Device.MaxWidth = buffer.MaxDimension + 1 }, "device.max_width"},
		{"even kernel", func(c *Config) { c.Device.KernelSize = 4 }, "device.kernel_size"},
		{"zero baud", func(c *Config) { c.Link.BaudRate = 0 }, "link.baud_rate"},
		{"zero poll timeout", func(c *Config) { c.Link.PollTimeout = 0 }, "link.poll_timeout"},
		{"negative result timeout", func(c *Config) { c.Host.ResultTimeout = -time.Second }, "host.result_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			require.ErrorContains(t, cfg.Verify(), tt.errMsg)
		})
	}
}
