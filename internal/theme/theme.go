package theme

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Variant identifies the thematic palette family for a console session.
type Variant string

const (
	VariantGreen Variant = "green"
	VariantAmber Variant = "amber"
	VariantBlue  Variant = "blue"
	VariantMono  Variant = "mono"
)

// SemanticRoles defines stable semantic color slots used across the session
// chrome. Components should depend on these roles rather than variant-specific
// color literals.
type SemanticRoles struct {
	Primary string
	Accent  string
	Muted   string
	Danger  string
	Success string
	Border  string
}

// Style describes presentational attributes for one console surface.
type Style struct {
	Foreground string
	Background string
	Bold       bool
}

// StyleSet provides strongly-typed styles for the console surfaces.
type StyleSet struct {
	Banner   Style
	Prompt   Style
	Response Style
	Warning  Style
	Status   Style
}

// Bundle contains all display styles needed by a console session.
type Bundle struct {
	StyleSet
	Roles SemanticRoles
}

// TermProfile describes terminal rendering capabilities derived from TERM.
type TermProfile struct {
	Colors    int
	TrueColor bool
	IsTTY     bool
}

// TermProfileDetector maps a TERM value to a terminal capability profile.
type TermProfileDetector func(term string) TermProfile

// ErrUnknownVariant is returned when a requested variant is not known.
var ErrUnknownVariant = errors.New("unknown theme variant")

var (
	termProfileCache sync.Map
	knownProfiles    = map[string]TermProfile{
		"dumb":           {Colors: 0, TrueColor: false, IsTTY: false},
		"ansi":           {Colors: 8, TrueColor: false, IsTTY: true},
		"linux":          {Colors: 16, TrueColor: false, IsTTY: true},
		"xterm":          {Colors: 16, TrueColor: false, IsTTY: true},
		"xterm-256color": {Colors: 256, TrueColor: false, IsTTY: true},
		"screen":         {Colors: 8, TrueColor: false, IsTTY: true},
		"tmux":           {Colors: 256, TrueColor: false, IsTTY: true},
		"vt100":          {Colors: 8, TrueColor: false, IsTTY: true},
		"xterm-kitty":    {Colors: 1 << 24, TrueColor: true, IsTTY: true},
		"wezterm":        {Colors: 1 << 24, TrueColor: true, IsTTY: true},
	}
)

var palettes = map[Variant]Bundle{
	VariantGreen: {
		StyleSet: StyleSet{
			Banner:   Style{Foreground: "#9CFFB0", Background: "#04240C", Bold: true},
			Prompt:   Style{Foreground: "#33FF66", Background: "#021607", Bold: true},
			Response: Style{Foreground: "#C8FFD4", Background: "#04240C"},
			Warning:  Style{Foreground: "#FFF7C2", Background: "#4A3A06", Bold: true},
			Status:   Style{Foreground: "#7BE693", Background: "#06300F"},
		},
		Roles: SemanticRoles{Primary: "#04240C", Accent: "#33FF66", Muted: "#06300F", Danger: "#4A3A06", Success: "#33FF66", Border: "#1E7A3A"},
	},
	VariantAmber: {
		StyleSet: StyleSet{
			Banner:   Style{Foreground: "#FFD27A", Background: "#2B1A00", Bold: true},
			Prompt:   Style{Foreground: "#FFB000", Background: "#1C1100", Bold: true},
			Response: Style{Foreground: "#FFE7B8", Background: "#2B1A00"},
			Warning:  Style{Foreground: "#2B0600", Background: "#FF7A45", Bold: true},
			Status:   Style{Foreground: "#E6A840", Background: "#352000"},
		},
		Roles: SemanticRoles{Primary: "#2B1A00", Accent: "#FFB000", Muted: "#352000", Danger: "#FF7A45", Success: "#C9E27A", Border: "#8F6A1E"},
	},
	VariantBlue: {
		StyleSet: StyleSet{
			Banner:   Style{Foreground: "#FFFFFF", Background: "#0B1F3A", Bold: true},
			Prompt:   Style{Foreground: "#8AD2FF", Background: "#0F345E", Bold: true},
			Response: Style{Foreground: "#D7E3F4", Background: "#122A4A"},
			Warning:  Style{Foreground: "#FFDDE0", Background: "#5B1F2A", Bold: true},
			Status:   Style{Foreground: "#A9C3E6", Background: "#163A63"},
		},
		Roles: SemanticRoles{Primary: "#0B1F3A", Accent: "#0F345E", Muted: "#122A4A", Danger: "#5B1F2A", Success: "#1F6B4A", Border: "#2A4C74"},
	},
	VariantMono: grayscaleBundle(),
}

var variants = [...]Variant{VariantGreen, VariantAmber, VariantBlue, VariantMono}

// Variants lists the known variant names in presentation order.
func Variants() []Variant {
	out := make([]Variant, len(variants))
	copy(out, variants[:])
	return out
}

// Resolve resolves a concrete style bundle for a variant and TERM value.
//
// For lower-capability terminals (xterm-256color and below), Resolve returns
// a monochrome/high-contrast bundle unless color is explicitly forced.
func Resolve(variant Variant, term string) (Bundle, error) {
	return resolveWith(variant, ResolveOptions{Term: term}, detectTermProfile)
}

// ResolveWithDetector resolves a bundle using a caller-provided TERM detector.
//
// This is primarily intended for tests and advanced integrations that want
// custom TERM/profile mapping behavior without changing palette logic.
func ResolveWithDetector(variant Variant, opts ResolveOptions, detector TermProfileDetector) (Bundle, error) {
	if detector == nil {
		detector = detectTermProfile
	}
	return resolveWith(variant, opts, detector)
}

// DetectTermProfile maps TERM to a terminal capability profile.
func DetectTermProfile(term string) TermProfile {
	return detectTermProfile(term)
}

// ResolveFromEnv resolves the theme using runtime overrides:
//   - CONSOLE_THEME (green|amber|blue|mono)
//   - CONSOLE_FORCE_COLOR (boolean)
//   - CONSOLE_FORCE_MONO (boolean)
//
// When CONSOLE_THEME_DEBUG is true, the resolved profile and decisions are
// logged.
func ResolveFromEnv(defaultVariant Variant, term string) (Variant, Bundle, error) {
	variant := defaultVariant
	if v := strings.TrimSpace(os.Getenv("CONSOLE_THEME")); v != "" {
		variant = Variant(strings.ToLower(v))
	}

	forceColor := parseBoolEnv("CONSOLE_FORCE_COLOR")
	forceMono := parseBoolEnv("CONSOLE_FORCE_MONO")

	bundle, profile, err := resolveWithProfile(variant, ResolveOptions{
		Term:       term,
		ForceColor: forceColor,
		ForceMono:  forceMono,
	}, detectTermProfile)
	if err != nil {
		return variant, Bundle{}, err
	}

	if parseBoolEnv("CONSOLE_THEME_DEBUG") {
		log.Printf("theme: variant=%s term=%q colors=%d truecolor=%t tty=%t forceColor=%t forceMono=%t", variant, term, profile.Colors, profile.TrueColor, profile.IsTTY, forceColor, forceMono)
	}

	return variant, bundle, nil
}

// ResolveOptions controls how a bundle is selected once a TERM profile exists.
type ResolveOptions struct {
	Term       string
	ForceColor bool
	ForceMono  bool
}

// Render wraps text in the SGR sequences for the style. Terminals without
// truecolor support get the text unstyled; the console must stay legible on a
// bare serial link.
func (s Style) Render(text string, profile TermProfile) string {
	if !profile.IsTTY || !profile.TrueColor {
		return text
	}

	var b strings.Builder
	if s.Bold {
		b.WriteString("\x1b[1m")
	}
	if fg, ok := parseHexColor(s.Foreground); ok {
		fmt.Fprintf(&b, "\x1b[38;2;%d;%d;%dm", fg[0], fg[1], fg[2])
	}
	if bg, ok := parseHexColor(s.Background); ok {
		fmt.Fprintf(&b, "\x1b[48;2;%d;%d;%dm", bg[0], bg[1], bg[2])
	}
	if b.Len() == 0 {
		return text
	}
	b.WriteString(text)
	b.WriteString("\x1b[0m")
	return b.String()
}

func parseHexColor(hex string) ([3]uint8, bool) {
	hex = strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(hex) != 6 {
		return [3]uint8{}, false
	}
	var rgb [3]uint8
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseUint(hex[i*2:i*2+2], 16, 8)
		if err != nil {
			return [3]uint8{}, false
		}
		rgb[i] = uint8(v)
	}
	return rgb, true
}

func resolveWith(variant Variant, opts ResolveOptions, detector TermProfileDetector) (Bundle, error) {
	bundle, _, err := resolveWithProfile(variant, opts, detector)
	return bundle, err
}

func resolveWithProfile(variant Variant, opts ResolveOptions, detector TermProfileDetector) (Bundle, TermProfile, error) {
	base, ok := palettes[variant]
	if !ok {
		return Bundle{}, TermProfile{}, fmt.Errorf("%w: %s", ErrUnknownVariant, variant)
	}

	term := strings.TrimSpace(opts.Term)
	if term == "" {
		term = os.Getenv("TERM")
	}

	profile := detector(term)
	if shouldUseMonochrome(profile, opts) {
		return grayscaleBundle(), profile, nil
	}

	if variant == VariantMono {
		return grayscaleBundle(), profile, nil
	}

	return base, profile, nil
}

func parseBoolEnv(key string) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

func shouldUseMonochrome(profile TermProfile, opts ResolveOptions) bool {
	if opts.ForceMono {
		return true
	}
	if opts.ForceColor {
		return false
	}
	if !profile.IsTTY {
		return true
	}
	if !profile.TrueColor && profile.Colors <= 256 {
		return true
	}
	return false
}

func detectTermProfile(term string) TermProfile {
	norm := strings.ToLower(strings.TrimSpace(term))
	if cached, ok := termProfileCache.Load(norm); ok {
		return cached.(TermProfile)
	}

	profile := detectTermProfileUncached(norm)
	termProfileCache.Store(norm, profile)
	return profile
}

func detectTermProfileUncached(norm string) TermProfile {
	if norm == "" {
		return TermProfile{Colors: 0, TrueColor: false, IsTTY: false}
	}

	if p, ok := knownProfiles[norm]; ok {
		return p
	}

	profile := TermProfile{Colors: 16, TrueColor: false, IsTTY: true}
	if strings.Contains(norm, "truecolor") || strings.Contains(norm, "24bit") || strings.Contains(norm, "kitty") || strings.Contains(norm, "wezterm") {
		profile.TrueColor = true
		profile.Colors = 1 << 24
	}
	if strings.Contains(norm, "256") {
		profile.Colors = 256
	}
	if strings.Contains(norm, "dumb") {
		profile = TermProfile{Colors: 0, TrueColor: false, IsTTY: false}
	}
	if strings.Contains(norm, "screen") {
		profile.Colors = 8
	}

	return profile
}

func grayscaleBundle() Bundle {
	return Bundle{
		StyleSet: StyleSet{
			Banner:   Style{Foreground: "#FFFFFF", Background: "#111111", Bold: true},
			Prompt:   Style{Foreground: "#FFFFFF", Background: "#000000", Bold: true},
			Response: Style{Foreground: "#F2F2F2", Background: "#1A1A1A"},
			Warning:  Style{Foreground: "#000000", Background: "#E6E6E6", Bold: true},
			Status:   Style{Foreground: "#CFCFCF", Background: "#222222"},
		},
		Roles: SemanticRoles{Primary: "#111111", Accent: "#FFFFFF", Muted: "#1A1A1A", Danger: "#E6E6E6", Success: "#CFCFCF", Border: "#8F8F8F"},
	}
}
