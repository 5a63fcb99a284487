package common

import (
	"fmt"
	"os"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application startup banner to stderr.
func PrintBanner(config *Config, logger arbor.ILogger, command string) {
	version := GetVersion()
	build := GetBuild()
	commit := GetGitCommit()

	lineColor := banner.ColorCyan
	textColor := banner.ColorBold + banner.ColorWhite
	width := 60
	hr := lineColor + strings.Repeat("═", width) + banner.ColorReset

	art := []string{
		` 8888888b.  888     888 888      .d8888b.  8888888888`,
		` 888   Y88b 888     888 888     d88P  Y88b 888`,
		` 888    888 888     888 888     Y88b.      888`,
		` 888   d88P 888     888 888      "Y888b.   8888888`,
		` 8888888P"  888     888 888         "Y88b. 888`,
		` 888        888     888 888           "888 888`,
		` 888        Y88b. .d88P 888     Y88b  d88P 888`,
		` 888         "Y88888P"  88888888 "Y8888P"  8888888888`,
	}

	fmt.Fprintf(os.Stderr, "\n%s\n\n", hr)
	for _, line := range art {
		fmt.Fprintf(os.Stderr, "%s%s%s\n", textColor, line, banner.ColorReset)
	}
	fmt.Fprintf(os.Stderr, "\n%s  Portfolio Prices & Weekly Newsletter%s\n\n", textColor, banner.ColorReset)
	fmt.Fprintf(os.Stderr, "%s\n\n", hr)

	kvPad := 14
	kvLines := [][2]string{
		{"Version", version},
		{"Build", build},
		{"Commit", commit},
		{"Environment", config.Environment},
		{"Command", command},
		{"Providers", strings.Join(config.Prices.Providers, ", ")},
		{"Storage", config.Storage.Badger.Path},
	}
	for _, kv := range kvLines {
		fmt.Fprintf(os.Stderr, "%s  %-*s %s%s\n", textColor, kvPad, kv[0], kv[1], banner.ColorReset)
	}
	fmt.Fprintf(os.Stderr, "\n%s\n\n", hr)

	logger.Info().
		Str("version", version).
		Str("build", build).
		Str("commit", commit).
		Str("environment", config.Environment).
		Str("command", command).
		Msg("Application started")
}
