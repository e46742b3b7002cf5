package painter

import (
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/fresco/painter/core"
	"github.com/spaghettifunk/fresco/painter/gpu"
)

const maxInFlightFramesLimit = 8

// CapacityConfig bounds the painter's tables. The bounds exist to catch
// leaks, not to be tuned per scene.
type CapacityConfig struct {
	MaxResources uint32 `toml:"max_resources"`
	MaxPipelines uint32 `toml:"max_pipelines"`
	MaxLayouts   uint32 `toml:"max_layouts"`
}

// DeviceLimitsConfig caps what the painter accepts below what the device
// advertises. A zero field keeps the device value; configuration can only
// tighten a limit, never loosen it past the hardware.
type DeviceLimitsConfig struct {
	MaxTextureDimension2D uint32 `toml:"max_texture_dimension_2d"`
	MaxBufferSize         uint64 `toml:"max_buffer_size"`
	MaxBindGroups         uint32 `toml:"max_bind_groups"`
	MaxBindingsPerGroup   uint32 `toml:"max_bindings_per_group"`
}

// Config is the painter's startup configuration. It is read once at New
// and immutable afterwards.
type Config struct {
	Name              string             `toml:"name"`
	LogLevel          string             `toml:"log_level"`
	MaxFramesInFlight int                `toml:"max_in_flight_frames"`
	SurfaceFormat     string             `toml:"surface_format"`
	ShaderDir         string             `toml:"shader_dir"`
	WatchShaders      bool               `toml:"watch_shaders"`
	WatchBuffer       int                `toml:"watch_buffer"`
	Capacity          CapacityConfig     `toml:"capacity"`
	DeviceLimits      DeviceLimitsConfig `toml:"device_limits"`
}

func DefaultConfig() *Config {
	return &Config{
		Name:              "fresco",
		LogLevel:          string(core.InfoLevel),
		MaxFramesInFlight: 2,
		ShaderDir:         "assets/shaders",
		WatchShaders:      true,
		WatchBuffer:       64,
		Capacity: CapacityConfig{
			MaxResources: 1024,
			MaxPipelines: 128,
			MaxLayouts:   64,
		},
	}
}

// LoadConfig reads a TOML file over the defaults, so a config file only
// states what it changes.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		core.LogError("func LoadConfig - %s", err.Error())
		return nil, err
	}
	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		core.LogError("func LoadConfig - %s is not valid TOML: %s", path, err.Error())
		return nil, err
	}
	return config, nil
}

// normalize clamps and backfills so the systems always see usable values.
func (c *Config) normalize() {
	c.MaxFramesInFlight = core.Clamp(c.MaxFramesInFlight, 1, maxInFlightFramesLimit)
	if c.WatchBuffer == 0 {
		c.WatchBuffer = 64
	}
	defaults := DefaultConfig()
	if c.Capacity.MaxResources == 0 {
		c.Capacity.MaxResources = defaults.Capacity.MaxResources
	}
	if c.Capacity.MaxPipelines == 0 {
		c.Capacity.MaxPipelines = defaults.Capacity.MaxPipelines
	}
	if c.Capacity.MaxLayouts == 0 {
		c.Capacity.MaxLayouts = defaults.Capacity.MaxLayouts
	}
}

// surfaceFormat resolves the configured format, falling back to what the
// surface already advertises.
func (c *Config) surfaceFormat(fallback gpu.TextureFormat) (gpu.TextureFormat, error) {
	if c.SurfaceFormat == "" {
		return fallback, nil
	}
	return gpu.ParseTextureFormat(c.SurfaceFormat)
}

// deviceLimits overlays the configured caps onto the limits the device
// advertises. The effective limit is the smaller of the two.
func (c *Config) deviceLimits(base gpu.Limits) gpu.Limits {
	if v := c.DeviceLimits.MaxTextureDimension2D; v != 0 && v < base.MaxTextureDimension2D {
		base.MaxTextureDimension2D = v
	}
	if v := c.DeviceLimits.MaxBufferSize; v != 0 && v < base.MaxBufferSize {
		base.MaxBufferSize = v
	}
	if v := c.DeviceLimits.MaxBindGroups; v != 0 && v < base.MaxBindGroups {
		base.MaxBindGroups = v
	}
	if v := c.DeviceLimits.MaxBindingsPerGroup; v != 0 && v < base.MaxBindingsPerGroup {
		base.MaxBindingsPerGroup = v
	}
	return base
}
