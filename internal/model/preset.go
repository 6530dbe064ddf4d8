package model

import "fmt"

// Preset is a named output-size configuration mapping to a fixed
// target pixel width.
type Preset string

const (
	PresetDesktop   Preset = "desktop"
	PresetTablet    Preset = "tablet"
	PresetMobile    Preset = "mobile"
	PresetThumbnail Preset = "thumbnail"
	PresetLogo      Preset = "logo"
)

// DefaultPreset is active until the user picks another one.
const DefaultPreset = PresetDesktop

var presetWidths = map[Preset]int{
	PresetDesktop:   1200,
	PresetTablet:    800,
	PresetMobile:    600,
	PresetThumbnail: 400,
	PresetLogo:      250,
}

// ParsePreset validates a raw preset value coming from the API.
func ParsePreset(s string) (Preset, error) {
	p := Preset(s)
	if _, ok := presetWidths[p]; !ok {
		return "", fmt.Errorf("unknown preset %q", s)
	}

	return p, nil
}

// Width returns the target pixel width for the preset.
func (p Preset) Width() int {
	return presetWidths[p]
}
