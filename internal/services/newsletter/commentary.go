package newsletter

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pulse/internal/interfaces"
	"github.com/ternarybob/pulse/internal/models"
)

// PctTolerance is how far a quoted percentage may drift from the computed one
const PctTolerance = 0.1

// CommentarySections are the labelled bullets every holding commentary must carry
var CommentarySections = []string{"Performance", "Key Driver", "Additional Context", "Outlook"}

// ErrInvalidCommentary marks generated text that lacks the required structure
var ErrInvalidCommentary = errors.New("commentary missing required sections")

var (
	pctRe      = regexp.MustCompile(`([+-]?)(\d+(?:\.\d+)?)%`)
	upWordsRe  = regexp.MustCompile(`(?i)\b(up|rose|rise|gain(?:ed)?|increased?|higher|climbed|rallied)\b`)
	downWordRe = regexp.MustCompile(`(?i)\b(down|fell|fall|drop(?:ped)?|declined?|decreased?|lower|slid)\b`)
)

// CommentaryCheck reports what validation found in a generated commentary
type CommentaryCheck struct {
	FoundPct        float64
	HasPct          bool
	Corrected       bool
	WrongDirection  bool
	MissingSections []string
}

// ValidateCommentary checks a commentary against the computed percentage change.
// The first percentage in text is replaced with expectedPct when it is off by more
// than PctTolerance. Unsigned percentages are compared by magnitude.
func ValidateCommentary(text string, expectedPct float64) (string, CommentaryCheck) {
	var check CommentaryCheck

	if loc := pctRe.FindStringSubmatchIndex(text); loc != nil {
		sign := text[loc[2]:loc[3]]
		value, err := strconv.ParseFloat(text[loc[4]:loc[5]], 64)
		if err == nil {
			check.HasPct = true
			check.FoundPct = value
			expected := math.Abs(expectedPct)
			if sign != "" {
				if sign == "-" {
					value = -value
				}
				check.FoundPct = value
				expected = expectedPct
			}
			if math.Abs(value-expected) > PctTolerance {
				check.Corrected = true
				text = text[:loc[0]] + fmt.Sprintf("%.2f%%", expectedPct) + text[loc[1]:]
			}
		}
	}

	hasUp := upWordsRe.MatchString(text)
	hasDown := downWordRe.MatchString(text)
	if expectedPct >= 0 {
		check.WrongDirection = hasDown && !hasUp
	} else {
		check.WrongDirection = hasUp && !hasDown
	}

	lower := strings.ToLower(text)
	for _, section := range CommentarySections {
		if !strings.Contains(lower, strings.ToLower(section)) {
			check.MissingSections = append(check.MissingSections, section)
		}
	}

	return text, check
}

// CommentaryGenerator writes search-grounded commentary for a single holding
type CommentaryGenerator struct {
	llm    interfaces.ContentGenerator
	model  string
	logger arbor.ILogger
}

// NewCommentaryGenerator creates a commentary generator. An empty model uses the default.
func NewCommentaryGenerator(llm interfaces.ContentGenerator, model string, logger arbor.ILogger) *CommentaryGenerator {
	return &CommentaryGenerator{
		llm:    llm,
		model:  model,
		logger: logger,
	}
}

// GenerateHoldingCommentary returns four labelled bullets on one holding's move.
// The quoted percentage is corrected to the record's value; text missing a
// section is returned with ErrInvalidCommentary.
func (g *CommentaryGenerator) GenerateHoldingCommentary(ctx context.Context, record models.PerformanceRecord, displayName string) (string, error) {
	g.logger.Debug().
		Str("ticker", record.Ticker).
		Float64("pct_change", record.PctChange).
		Msg("Generating holding commentary")

	resp, err := g.llm.GenerateContent(ctx, &interfaces.ContentRequest{
		Model:        g.model,
		Temperature:  0.3,
		GoogleSearch: true,
		Messages: []interfaces.Message{
			{Role: "user", Content: buildCommentaryPrompt(record, displayName)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("commentary for %s failed: %w", record.Ticker, err)
	}

	text := stripOuterCodeFences(resp.Text)
	if text == "" {
		return "", fmt.Errorf("empty commentary for %s", record.Ticker)
	}

	text, check := ValidateCommentary(text, record.PctChange)
	if check.Corrected {
		g.logger.Warn().
			Str("ticker", record.Ticker).
			Float64("expected_pct", record.PctChange).
			Float64("found_pct", check.FoundPct).
			Msg("Commentary quoted the wrong percentage, corrected")
	}
	if check.WrongDirection {
		g.logger.Error().
			Str("ticker", record.Ticker).
			Float64("expected_pct", record.PctChange).
			Msg("Commentary describes the wrong direction")
	}
	if len(check.MissingSections) > 0 {
		return text, fmt.Errorf("%w: %s lacks %s", ErrInvalidCommentary, record.Ticker, strings.Join(check.MissingSections, ", "))
	}

	return text, nil
}

func buildCommentaryPrompt(r models.PerformanceRecord, displayName string) string {
	return fmt.Sprintf(`You are a financial analyst creating a brief analysis for a client newsletter.

CRITICAL: You MUST use ONLY the exact price data provided below. Do NOT search for or use any other price information.

EXACT PRICE DATA FOR %[1]s (%[2]s):
- Start Price: $%.2[3]f (%[4]s)
- End Price: $%.2[5]f (%[6]s)
- Price Change: $%.2[7]f
- Percentage Change: %.2[8]f%%
- Period: %[9]s

Create exactly 4 bullet points:

- **Performance**: %[2]s (%[1]s) moved %.2[8]f%% over the period, from $%.2[3]f to $%.2[5]f.
- **Key Driver**: [Use web search to find the main news or factor behind this %.2[8]f%% move]
- **Additional Context**: [Use web search to find secondary factors or analyst opinions about %[2]s]
- **Outlook**: [Brief forward-looking sentiment based on recent developments]

REQUIREMENTS:
- Use EXACTLY the percentage and price data above
- Use web search only for news and context, not for price data
- Keep each bullet to 1-2 sentences
- Include source URLs for news
- Return only the 4 bullet points, no other text`,
		r.Ticker, displayName, r.FirstClose, r.FirstDate, r.LastClose, r.LastDate, r.AbsChange, r.PctChange, periodLabel(r.PeriodName))
}

func periodLabel(period string) string {
	switch period {
	case "weekly":
		return "week"
	case "ytd":
		return "year to date"
	case "mtd":
		return "month to date"
	case "":
		return "week"
	}
	return period
}
