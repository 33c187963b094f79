package govee

import (
	"fmt"
	"strconv"
	"strings"
)

// RGB is a 24-bit color.
type RGB struct {
	R, G, B uint8
}

func (c RGB) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// ParseRGB parses a "#rrggbb" hex color, as used in the palette file.
func ParseRGB(s string) (RGB, error) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return RGB{}, fmt.Errorf("invalid color %q", s)
	}
	value, err := strconv.ParseUint(s, 16, 24)
	if err != nil {
		return RGB{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return RGB{R: uint8(value >> 16), G: uint8(value >> 8), B: uint8(value)}, nil
}

// A Command describes the complete desired light state. Commands are always
// sent in full (never as deltas): the physical device keeps its own state
// across restarts of this process, so partial updates could leave it in a
// mix of old and new settings.
type Command struct {
	// Power turns the light on or off. When off, the other fields are not sent.
	Power bool
	// Color sets an RGB color. When nil, Temperature is used instead.
	Color *RGB
	// Temperature is a white color temperature in Kelvin (2000-9000).
	Temperature int
	// Brightness is the brightness level (0-100).
	Brightness int
}

func (c Command) String() string {
	if !c.Power {
		return "off"
	}
	if c.Color != nil {
		return fmt.Sprintf("%s @ %d%%", c.Color, c.Brightness)
	}
	return fmt.Sprintf("%dK @ %d%%", c.Temperature, c.Brightness)
}
