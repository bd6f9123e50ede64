package clouds

import (
	"errors"
	"flag"
	"fmt"
)

// Config holds the settings of the cloud-layer demo renderer.
type Config struct {
	WindowWidth  int
	WindowHeight int
	WindowTitle  string

	// Empty shader paths select the embedded WGSL programs.
	VertexShaderPath string
	PixelShaderPath  string
	// Empty texture path selects the procedural cloud texture.
	TexturePath string
	TextureSize int
	TextureSeed int64

	ScrollSpeed float64
	PlaneSize   float64
	PlaneHeight float64
	UVRepeat    float64
	Debug       bool
	LogPrefix   string
}

func DefaultConfig() Config {
	return Config{
		WindowWidth:  1280,
		WindowHeight: 720,
		WindowTitle:  "Clouds",
		TextureSize:  256,
		TextureSeed:  1,
		ScrollSpeed:  0.02,
		PlaneSize:    400,
		PlaneHeight:  60,
		UVRepeat:     4,
		LogPrefix:    "clouds",
	}
}

// BindFlags registers every field on fs, using the current values as defaults.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.WindowWidth, "width", c.WindowWidth, "Window width in pixels")
	fs.IntVar(&c.WindowHeight, "height", c.WindowHeight, "Window height in pixels")
	fs.StringVar(&c.WindowTitle, "title", c.WindowTitle, "Window title")
	fs.StringVar(&c.VertexShaderPath, "vs", c.VertexShaderPath, "Vertex shader WGSL file (empty: embedded)")
	fs.StringVar(&c.PixelShaderPath, "ps", c.PixelShaderPath, "Pixel shader WGSL file (empty: embedded)")
	fs.StringVar(&c.TexturePath, "texture", c.TexturePath, "Cloud texture (png, jpeg, bmp, tiff; empty: procedural)")
	fs.IntVar(&c.TextureSize, "texture-size", c.TextureSize, "Texture edge length; loaded images are scaled to it (0 keeps their size)")
	fs.Int64Var(&c.TextureSeed, "texture-seed", c.TextureSeed, "Procedural texture seed")
	fs.Float64Var(&c.ScrollSpeed, "scroll-speed", c.ScrollSpeed, "Cloud scroll speed in UV units per second")
	fs.Float64Var(&c.PlaneSize, "plane-size", c.PlaneSize, "Cloud plane edge length")
	fs.Float64Var(&c.PlaneHeight, "plane-height", c.PlaneHeight, "Cloud plane height above the origin")
	fs.Float64Var(&c.UVRepeat, "uv-repeat", c.UVRepeat, "Texture repeats across the plane")
	fs.BoolVar(&c.Debug, "debug", c.Debug, "Enable debug logging and profiler output")
}

func (c Config) Validate() error {
	var errs []error
	if c.WindowWidth <= 0 || c.WindowHeight <= 0 {
		errs = append(errs, fmt.Errorf("window size must be positive, got %dx%d", c.WindowWidth, c.WindowHeight))
	}
	if c.TexturePath == "" && c.TextureSize <= 0 {
		errs = append(errs, fmt.Errorf("texture size must be positive, got %d", c.TextureSize))
	}
	if c.PlaneSize <= 0 {
		errs = append(errs, fmt.Errorf("plane size must be positive, got %g", c.PlaneSize))
	}
	if c.UVRepeat <= 0 {
		errs = append(errs, fmt.Errorf("uv repeat must be positive, got %g", c.UVRepeat))
	}
	return errors.Join(errs...)
}
