// Package theme holds the fixed set of statement palettes.
package theme

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"paystub/internal/platform/apperr"
)

var ErrUnknownTheme = errors.New("unknown theme")

// Color is an sRGB color.
type Color struct {
	R, G, B int
}

// Hex parses "#RRGGBB".
func Hex(raw string) (Color, error) {
	s := strings.TrimPrefix(strings.TrimSpace(raw), "#")
	if len(s) != 6 {
		return Color{}, fmt.Errorf("invalid color %q", raw)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("invalid color %q", raw)
	}
	return Color{R: int(v >> 16 & 0xff), G: int(v >> 8 & 0xff), B: int(v & 0xff)}, nil
}

func mustHex(raw string) Color {
	c, err := Hex(raw)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Color) String() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// Mix blends c toward other; t=0 is c and t=1 is other.
func (c Color) Mix(other Color, t float64) Color {
	lerp := func(a, b int) int { return a + int(float64(b-a)*t+0.5) }
	return Color{R: lerp(c.R, other.R), G: lerp(c.G, other.G), B: lerp(c.B, other.B)}
}

// Luminance is the relative luminance in [0, 1], used to pick readable text
// colors on theme backgrounds.
func (c Color) Luminance() float64 {
	return (0.2126*float64(c.R) + 0.7152*float64(c.G) + 0.0722*float64(c.B)) / 255
}

// Definition is one named palette.
type Definition struct {
	Key           string `json:"key"`
	Name          string `json:"name"`
	Primary       Color  `json:"-"`
	Secondary     Color  `json:"-"`
	Accent        Color  `json:"-"`
	GradientStart Color  `json:"-"`
	GradientEnd   Color  `json:"-"`
}

// Swatch is the JSON view of a definition.
type Swatch struct {
	Key       string `json:"key"`
	Name      string `json:"name"`
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
	Accent    string `json:"accent"`
}

func (d Definition) Swatch() Swatch {
	return Swatch{Key: d.Key, Name: d.Name, Primary: d.Primary.String(), Secondary: d.Secondary.String(), Accent: d.Accent.String()}
}

func define(key, name, primary, secondary, accent, gradientStart, gradientEnd string) Definition {
	return Definition{
		Key:           key,
		Name:          name,
		Primary:       mustHex(primary),
		Secondary:     mustHex(secondary),
		Accent:        mustHex(accent),
		GradientStart: mustHex(gradientStart),
		GradientEnd:   mustHex(gradientEnd),
	}
}

var catalogue = []Definition{
	define("anxiety", "Anxiety", "#2C3E50", "#16A085", "#27AE60", "#34495E", "#16A085"),
	define("sodas_skateboards", "Sodas & Skateboards", "#8B3A8B", "#00CED1", "#00E5EE", "#9932CC", "#00CED1"),
	define("guidance", "Guidance", "#8B7355", "#F0E68C", "#9ACD32", "#A0826D", "#BDB76B"),
	define("constant_rambling", "Constant Rambling", "#FF6B6B", "#87CEEB", "#4FC3F7", "#FFB6C1", "#87CEFA"),
	define("sweetest_chill", "The Sweetest Chill", "#4A4A6A", "#7B68EE", "#9370DB", "#483D8B", "#B0C4DE"),
	define("saltwater_tears", "Saltwater Tears", "#2F8B8B", "#20B2AA", "#48D1CC", "#5F9EA0", "#66CDAA"),
	define("damned_if_i_do", "Damned If I Do", "#D8A5A5", "#B0C4DE", "#DCDCDC", "#FFB6C1", "#D3D3D3"),
	define("without_a_heart", "Without A Heart", "#FFB6C1", "#B0C4DE", "#E6E6FA", "#FFC0CB", "#D8BFD8"),
	define("high_fashion", "High Fashion", "#FFD700", "#FF69B4", "#DA70D6", "#FFA500", "#BA55D3"),
	define("not_alone_yet", "I'm Not Alone (Yet)", "#708090", "#D2B48C", "#F5DEB3", "#778899", "#DEB887"),
	define("castle_in_sky", "Castle In The Sky", "#8B4513", "#F4A460", "#66CDAA", "#CD853F", "#5F9EA0"),
	define("pumpkaboo", "Pumpkaboo", "#B0C4DE", "#CD853F", "#8B4513", "#87CEEB", "#D2691E"),
	define("cherry_soda", "Cherry Soda", "#2F1F1F", "#DC143C", "#F5F5DC", "#4B0000", "#8B0000"),
	define("kinda_like_you", "I (Kinda) Like You Back", "#32CD32", "#FFD700", "#FF8C00", "#7FFF00", "#FFA500"),
	define("omniferous", "Omniferous", "#9ACD32", "#BC8F8F", "#C71585", "#ADFF2F", "#DA70D6"),
	define("blooming", "Blooming", "#F5F5DC", "#98FB98", "#FFB6C1", "#FFFACD", "#FF69B4"),
	define("this_is_my_swamp", "This Is My Swamp", "#2F4F4F", "#6B8E23", "#9ACD32", "#556B2F", "#8FBC8F"),
	define("what_i_gain", "What I Gain I Lose", "#B0C4DE", "#F5DEB3", "#FFDAB9", "#E6E6FA", "#FFE4E1"),
	define("cyberbullies", "Cyberbullies", "#00CED1", "#4169E1", "#0000FF", "#00BFFF", "#1E90FF"),
	define("cool_sunsets", "Cool Sunsets", "#F0E68C", "#66CDAA", "#5F9EA0", "#20B2AA", "#4682B4"),
	define("subtle_melancholy", "Subtle Melancholy", "#9370DB", "#B0C4DE", "#AFEEEE", "#8A7BA8", "#87CEEB"),
	define("conversation_hearts", "Conversation Hearts", "#FF1493", "#FFB6C1", "#7FFFD4", "#FF69B4", "#40E0D0"),
	define("tuesdays", "Tuesdays", "#9370DB", "#FFD700", "#F0E68C", "#BA55D3", "#EEE8AA"),
	define("sylveon", "Sylveon", "#FFE4E1", "#FFB6C1", "#B0C4DE", "#FFC0CB", "#87CEEB"),
}

var byKey = func() map[string]Definition {
	out := make(map[string]Definition, len(catalogue))
	for _, d := range catalogue {
		out[d.Key] = d
	}
	return out
}()

// Lookup resolves a theme key. Unknown keys are rejected; there is no
// default theme.
func Lookup(key string) (Definition, error) {
	d, ok := byKey[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return Definition{}, apperr.New(apperr.KindInvalidInput, "theme.lookup", fmt.Errorf("%w: %q", ErrUnknownTheme, key))
	}
	return d, nil
}

// Keys lists every theme key in catalogue order.
func Keys() []string {
	out := make([]string, len(catalogue))
	for i, d := range catalogue {
		out[i] = d.Key
	}
	return out
}

func All() []Definition {
	out := make([]Definition, len(catalogue))
	copy(out, catalogue)
	return out
}
