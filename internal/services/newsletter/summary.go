package newsletter

import (
	"fmt"
	"math"
	"strings"

	"github.com/ternarybob/pulse/internal/models"
)

// IntroSummary writes the opening paragraph from the weekly and year to date aggregates.
// The advisor sentence links to advisorURL when one is configured.
func IntroSummary(weekly, ytd models.PortfolioPerformance, advisorURL string) string {
	weeklyDirection := "increased"
	if weekly.OverallChangePct < 0 {
		weeklyDirection = "decreased"
	}
	ytdDirection := "up"
	if ytd.OverallChangePct < 0 {
		ytdDirection = "down"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "This week your portfolio %s by %.2f%%.\n", weeklyDirection, math.Abs(weekly.OverallChangePct))
	fmt.Fprintf(&b, "This was influenced by %s.\n", describeMovers(weekly.MajorMovers))
	b.WriteString("The broader market conditions and specific news affecting your holdings are detailed in the Market Recap below.\n")
	fmt.Fprintf(&b, "Year to date, your portfolio is %s %.2f%%.\n\n", ytdDirection, math.Abs(ytd.OverallChangePct))

	b.WriteString("For more details about your specific holdings or questions on what to do next in your portfolio, please feel free to contact an advisor ")
	if advisorURL != "" {
		fmt.Fprintf(&b, "[here](%s).", advisorURL)
	} else {
		b.WriteString("here.")
	}

	return b.String()
}

func describeMovers(movers []string) string {
	switch len(movers) {
	case 0:
		return "key positions"
	case 1:
		return "a key movement in " + movers[0]
	}
	return "movements in positions like " + strings.Join(movers, " and ")
}
