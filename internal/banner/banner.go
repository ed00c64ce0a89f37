// Package banner renders the startup logo shown by --help and the target
// command.
package banner

import (
	"github.com/charmbracelet/lipgloss"

	"sessionprobe/internal/tui/styles"
)

const ascii = `
                      _                             __
   ________  ______(_)___  ____  ____  _________  / /_  ___
  / ___/ _ \/ ___/ ___/ / __ \/ __ \/ __ \/ ___/ __ \/ __ \/ _ \
 (__  )  __(__  |__  ) / /_/ / / / / /_/ / /  / /_/ / /_/ /  __/
/____/\___/____/____/_/\____/_/ /_/ .___/_/   \____/_.___/\___/
                                 /_/                            `

func GetString() string {
	return GetStringWithTagline("find out how long an idle session lives")
}

// GetStringWithTagline renders the logo with a subtle line under it.
func GetStringWithTagline(tagline string) string {
	renderer := lipgloss.DefaultRenderer()

	logo := renderer.NewStyle().
		Foreground(styles.ColorBanner).
		Bold(true).
		Render(ascii)
	if tagline == "" {
		return "\n" + logo + "\n"
	}
	return "\n" + logo + "\n" + renderer.NewStyle().Foreground(styles.ColorSubtle).Render("  "+tagline) + "\n"
}
