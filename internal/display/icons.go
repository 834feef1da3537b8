package display

import (
	"os"
	"unicode/utf8"

	"github.com/mattn/go-isatty"
)

// Icon represents a visual icon with Unicode and ASCII fallbacks
type Icon struct {
	Unicode string
	ASCII   string
	Color   Color
}

// IconSystem handles icon rendering with fallbacks
type IconSystem interface {
	GetIcon(name string) Icon
	RenderIcon(name string) string
	RenderIconWithColor(name string, colorSystem ColorSystem) string
	IsUnicodeSupported() bool
	SetUnicodeSupport(enabled bool)
}

// iconSystem implements IconSystem
type iconSystem struct {
	unicodeSupported bool
	icons            map[string]Icon
}

// NewIconSystem creates a new icon system with Unicode detection
func NewIconSystem() IconSystem {
	is := &iconSystem{
		unicodeSupported: detectUnicodeSupport(),
		icons:            make(map[string]Icon),
	}

	is.initializeIcons()
	return is
}

// detectUnicodeSupport checks if the terminal can render Unicode glyphs.
// FORCE_UNICODE has the highest priority, then NO_UNICODE, then locale
// and TERM heuristics.
func detectUnicodeSupport() bool {
	if os.Getenv("FORCE_UNICODE") != "" {
		return true
	}

	if os.Getenv("NO_UNICODE") != "" {
		return false
	}

	if os.Getenv("LANG") == "C" || os.Getenv("LC_ALL") == "C" {
		return false
	}

	term := os.Getenv("TERM")
	if term == "dumb" || term == "vt100" {
		return false
	}

	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return false
	}

	return true
}

// initializeIcons sets up the predefined icon mappings
func (is *iconSystem) initializeIcons() {
	is.icons = map[string]Icon{
		// Operation icons
		"backup": {
			Unicode: "💾",
			ASCII:   "[B]",
			Color:   ColorBlue,
		},
		"restore": {
			Unicode: "♻",
			ASCII:   "[R]",
			Color:   ColorCyan,
		},
		"verify": {
			Unicode: "🔎",
			ASCII:   "[V]",
			Color:   ColorMagenta,
		},
		"cleanup": {
			Unicode: "🧹",
			ASCII:   "[CL]",
			Color:   ColorYellow,
		},

		// Artifact attribute icons
		"database": {
			Unicode: "🗄",
			ASCII:   "[DB]",
			Color:   ColorBlue,
		},
		"storage": {
			Unicode: "📦",
			ASCII:   "[S]",
			Color:   ColorBlue,
		},
		"encrypted": {
			Unicode: "🔒",
			ASCII:   "[E]",
			Color:   ColorMagenta,
		},
		"compressed": {
			Unicode: "🗜",
			ASCII:   "[Z]",
			Color:   ColorCyan,
		},
		"schedule": {
			Unicode: "🕐",
			ASCII:   "[T]",
			Color:   ColorCyan,
		},

		// Job state icons
		"queued": {
			Unicode: "⏳",
			ASCII:   "[Q]",
			Color:   ColorYellow,
		},
		"running": {
			Unicode: "▶",
			ASCII:   ">>",
			Color:   ColorBlue,
		},
		"cancelled": {
			Unicode: "⊘",
			ASCII:   "[X]",
			Color:   ColorYellow,
		},

		// Status icons
		"success": {
			Unicode: "✅",
			ASCII:   "[OK]",
			Color:   ColorGreen,
		},
		"error": {
			Unicode: "❌",
			ASCII:   "[ERR]",
			Color:   ColorRed,
		},
		"warning": {
			Unicode: "⚠️",
			ASCII:   "[WARN]",
			Color:   ColorYellow,
		},
		"info": {
			Unicode: "ℹ️",
			ASCII:   "[INFO]",
			Color:   ColorBlue,
		},

		// Progress and completion icons
		"loading": {
			Unicode: "⏳",
			ASCII:   "...",
			Color:   ColorBlue,
		},
		"done": {
			Unicode: "✓",
			ASCII:   "OK",
			Color:   ColorGreen,
		},
		"failed": {
			Unicode: "✗",
			ASCII:   "FAIL",
			Color:   ColorRed,
		},

		// Arrow and navigation icons
		"arrow-right": {
			Unicode: "→",
			ASCII:   "->",
			Color:   ColorBlue,
		},
		"arrow-down": {
			Unicode: "↓",
			ASCII:   "v",
			Color:   ColorBlue,
		},
		"bullet": {
			Unicode: "•",
			ASCII:   "*",
			Color:   ColorWhite,
		},

		// Severity level icons
		"critical": {
			Unicode: "🔴",
			ASCII:   "[CRIT]",
			Color:   ColorBrightRed,
		},
		"high": {
			Unicode: "🟡",
			ASCII:   "[HIGH]",
			Color:   ColorBrightYellow,
		},
		"medium": {
			Unicode: "🔵",
			ASCII:   "[MED]",
			Color:   ColorBrightBlue,
		},
		"low": {
			Unicode: "⚪",
			ASCII:   "[LOW]",
			Color:   ColorWhite,
		},

		// Section control icons
		"expand": {
			Unicode: "▶",
			ASCII:   ">",
			Color:   ColorBlue,
		},
		"collapse": {
			Unicode: "▼",
			ASCII:   "v",
			Color:   ColorBlue,
		},
	}
}

// GetIcon returns the icon for the given name
func (is *iconSystem) GetIcon(name string) Icon {
	if icon, exists := is.icons[name]; exists {
		return icon
	}
	// Unknown names render as a placeholder rather than erroring
	return Icon{
		Unicode: "?",
		ASCII:   "?",
		Color:   ColorWhite,
	}
}

// RenderIcon returns the appropriate icon representation (Unicode or ASCII)
func (is *iconSystem) RenderIcon(name string) string {
	icon := is.GetIcon(name)

	if is.unicodeSupported && utf8.ValidString(icon.Unicode) {
		return icon.Unicode
	}

	return icon.ASCII
}

// RenderIconWithColor returns the icon with its color applied
func (is *iconSystem) RenderIconWithColor(name string, colorSystem ColorSystem) string {
	icon := is.GetIcon(name)
	iconText := is.RenderIcon(name)

	if colorSystem.IsColorSupported() {
		return colorSystem.Colorize(iconText, icon.Color)
	}

	return iconText
}

// IsUnicodeSupported returns whether Unicode is supported
func (is *iconSystem) IsUnicodeSupported() bool {
	return is.unicodeSupported
}

// SetUnicodeSupport manually sets Unicode support (for testing or configuration)
func (is *iconSystem) SetUnicodeSupport(enabled bool) {
	is.unicodeSupported = enabled
}

// StatusIconName maps a backup job status string to an icon name.
func StatusIconName(status string) string {
	switch status {
	case "completed":
		return "success"
	case "failed":
		return "failed"
	case "in-progress":
		return "running"
	case "pending":
		return "queued"
	case "cancelled":
		return "cancelled"
	default:
		return "bullet"
	}
}
