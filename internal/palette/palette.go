// Package palette maps each meeting state to the light command that shows
// it. The built-in defaults match the classic setup (warm white when idle,
// blue when a meeting is coming up, red just before it starts, white during
// the meeting); users can override them with a lights.yaml next to the
// configuration file.
package palette

import (
	"fmt"
	"io"

	"github.com/clambin/meeting-light/internal/govee"
	"github.com/clambin/meeting-light/internal/meeting"
	"gopkg.in/yaml.v3"
)

// A Palette holds one light command per meeting state.
type Palette map[meeting.State]govee.Command

// Default returns the built-in palette.
func Default() Palette {
	return Palette{
		meeting.StateIdle:     {Power: true, Temperature: 2900, Brightness: 10},
		meeting.StateSoon:     {Power: true, Color: &govee.RGB{B: 255}, Brightness: 50},
		meeting.StateImminent: {Power: true, Color: &govee.RGB{R: 255}, Brightness: 100},
		meeting.StateActive:   {Power: true, Color: &govee.RGB{R: 255, G: 255, B: 255}, Brightness: 50},
	}
}

// TestCommand is the fixed command sent by the manual light test.
func TestCommand() govee.Command {
	return govee.Command{Power: true, Color: &govee.RGB{G: 255, B: 128}, Brightness: 100}
}

type paletteConfig struct {
	States map[string]stateConfig `yaml:"states"`
}

type stateConfig struct {
	Off         bool   `yaml:"off"`
	Color       string `yaml:"color"`
	Temperature int    `yaml:"temperature"`
	Brightness  *int   `yaml:"brightness"`
}

// Load reads palette overrides and merges them over the defaults. States not
// mentioned in the file keep their built-in command.
func Load(r io.Reader) (Palette, error) {
	var cfg paletteConfig
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("palette: %w", err)
	}

	p := Default()
	for name, override := range cfg.States {
		state, err := meeting.ParseState(name)
		if err != nil {
			return nil, fmt.Errorf("palette: %w", err)
		}
		cmd := p[state]
		if override.Off {
			p[state] = govee.Command{}
			continue
		}
		if override.Color != "" {
			color, err := govee.ParseRGB(override.Color)
			if err != nil {
				return nil, fmt.Errorf("palette: state %q: %w", name, err)
			}
			cmd.Color = &color
			cmd.Temperature = 0
		} else if override.Temperature != 0 {
			cmd.Temperature = override.Temperature
			cmd.Color = nil
		}
		if override.Brightness != nil {
			cmd.Brightness = *override.Brightness
		}
		p[state] = cmd
	}
	return p, nil
}
