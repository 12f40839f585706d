// Package config holds the settings shared by the device, host and simulation commands.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"mcu-image-pipeline/internal/algorithms"
	"mcu-image-pipeline/internal/buffer"
	"mcu-image-pipeline/internal/core"
)

const (
	DefaultResolution  = 128
	DefaultBaudRate    = 2000000
	DefaultPollTimeout = 2 * time.Second
	DefaultOpenTimeout = 30 * time.Second

	// DefaultResultTimeout bounds the wait for the last stage's result.
	DefaultResultTimeout = 10 * time.Second
)

// EnvPrefix prefixes every environment override, e.g. IMGPIPE_LINK_PORT.
const EnvPrefix = "IMGPIPE"

var envReplacer = strings.NewReplacer(".", "_", "-", "_")

// Configure makes v read imgpipe.yaml from the usual places and the
// IMGPIPE_ environment, over the defaults.
func Configure(v *viper.Viper) {
	v.SetConfigName("imgpipe")
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(envReplacer)
	v.AutomaticEnv()

	configPaths := []string{"/etc/imgpipe", "$HOME/.imgpipe", "."}
	for _, path := range configPaths {
		v.AddConfigPath(path)
	}

	SetDefaults(v)
}

type DeviceConfig struct {
	MaxWidth    int `mapstructure:"max_width"`
	MaxHeight   int `mapstructure:"max_height"`
	FrameWidth  int `mapstructure:"frame_width"`
	FrameHeight int `mapstructure:"frame_height"`
	KernelSize  int `mapstructure:"kernel_size"`
}

type LinkConfig struct {
	Port        string        `mapstructure:"port"`
	BaudRate    int           `mapstructure:"baud_rate"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
}

// HostConfig lists the images the host sends for each kind of request.
// An empty BinaryImage means the host reuses the first binarized result.
type HostConfig struct {
	GrayImage     string        `mapstructure:"gray_image"`
	ColorImage    string        `mapstructure:"color_image"`
	BinaryImage   string        `mapstructure:"binary_image"`
	OutputDir     string        `mapstructure:"output_dir"`
	OpenTimeout   time.Duration `mapstructure:"open_timeout"`
	ResultTimeout time.Duration `mapstructure:"result_timeout"`
}

type LogConfig struct {
	Debug bool `mapstructure:"debug"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type Config struct {
	Device  DeviceConfig  `mapstructure:"device"`
	Link    LinkConfig    `mapstructure:"link"`
	Host    HostConfig    `mapstructure:"host"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// DefaultConfig matches the reference board: 128x128 frames, a 3x3
// structuring element and a 2 Mbaud UART.
func DefaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			MaxWidth:    DefaultResolution,
			MaxHeight:   DefaultResolution,
			FrameWidth:  DefaultResolution,
			FrameHeight: DefaultResolution,
			KernelSize:  algorithms.DefaultKernelSize,
		},
		Link: LinkConfig{
			BaudRate:    DefaultBaudRate,
			PollTimeout: DefaultPollTimeout,
		},
		Host: HostConfig{
			OutputDir:     ".",
			OpenTimeout:   DefaultOpenTimeout,
			ResultTimeout: DefaultResultTimeout,
		},
	}
}

// SetDefaults registers every key with its default so environment variables
// are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("device.max_width", d.Device.MaxWidth)
	v.SetDefault("device.max_height", d.Device.MaxHeight)
	v.SetDefault("device.frame_width", d.Device.FrameWidth)
	v.SetDefault("device.frame_height", d.Device.FrameHeight)
	v.SetDefault("device.kernel_size", d.Device.KernelSize)

	v.SetDefault("link.port", d.Link.Port)
	v.SetDefault("link.baud_rate", d.Link.BaudRate)
	v.SetDefault("link.poll_timeout", d.Link.PollTimeout)

	v.SetDefault("host.gray_image", d.Host.GrayImage)
	v.SetDefault("host.color_image", d.Host.ColorImage)
	v.SetDefault("host.binary_image", d.Host.BinaryImage)
	v.SetDefault("host.output_dir", d.Host.OutputDir)
	v.SetDefault("host.open_timeout", d.Host.OpenTimeout)
	v.SetDefault("host.result_timeout", d.Host.ResultTimeout)

	v.SetDefault("log.debug", d.Log.Debug)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
}

// Load reads the config file if one is present and unmarshals v over the
// defaults. A missing file is not an error.
func Load(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()

	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// Verify checks the settings every command depends on.
func (cfg *Config) Verify() error {
	d := cfg.Device
	if d.MaxWidth <= 0 || d.MaxHeight <= 0 || d.MaxWidth > buffer.MaxDimension || d.MaxHeight > buffer.MaxDimension {
		return fmt.Errorf("config 'device.max_width' and 'device.max_height' must be between 1 and %d, got %dx%d",
			buffer.MaxDimension, d.MaxWidth, d.MaxHeight)
	}
	if d.FrameWidth <= 0 || d.FrameHeight <= 0 {
		return fmt.Errorf("config 'device.frame_width' and 'device.frame_height' must be positive, got %dx%d",
			d.FrameWidth, d.FrameHeight)
	}
	if d.FrameWidth > d.MaxWidth || d.FrameHeight > d.MaxHeight {
		return fmt.Errorf("frame %dx%d exceeds the workspace maximum %dx%d",
			d.FrameWidth, d.FrameHeight, d.MaxWidth, d.MaxHeight)
	}
	if err := algorithms.ValidateKernelSize("config", d.KernelSize); err != nil {
		return fmt.Errorf("config 'device.kernel_size': %w", err)
	}

	if cfg.Link.BaudRate <= 0 {
		return fmt.Errorf("config 'link.baud_rate' must be positive, got %d", cfg.Link.BaudRate)
	}
	if cfg.Link.PollTimeout <= 0 {
		return fmt.Errorf("config 'link.poll_timeout' must be positive, got %s", cfg.Link.PollTimeout)
	}
	if cfg.Host.ResultTimeout < 0 {
		return fmt.Errorf("config 'host.result_timeout' must not be negative, got %s", cfg.Host.ResultTimeout)
	}

	return nil
}

// RequirePort fails when no serial port is configured.
func (cfg *Config) RequirePort() error {
	if cfg.Link.Port == "" {
		return errors.New("config 'link.port' must be set")
	}
	return nil
}

// Controller returns the controller settings.
func (cfg *Config) Controller() core.Config {
	return core.Config{
		MaxWidth:    cfg.Device.MaxWidth,
		MaxHeight:   cfg.Device.MaxHeight,
		FrameWidth:  cfg.Device.FrameWidth,
		FrameHeight: cfg.Device.FrameHeight,
		KernelSize:  cfg.Device.KernelSize,
	}
}
