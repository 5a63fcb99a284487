// Package newsletter composes and sends the weekly portfolio newsletter.
package newsletter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pulse/internal/common"
	"github.com/ternarybob/pulse/internal/interfaces"
	"github.com/ternarybob/pulse/internal/models"
	"github.com/ternarybob/pulse/internal/services/portfolio"
)

// User result statuses
const (
	StatusSent    = "sent"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
	StatusDryRun  = "dry_run"
)

// PerformanceSource provides period reports and the current time
type PerformanceSource interface {
	GetPeriodReport(ctx context.Context, tickers []string, period string, holdings models.Holdings) (*portfolio.PeriodReport, error)
	Now() time.Time
}

// UserResult is the outcome of one user's newsletter
type UserResult struct {
	UserID     string   `json:"user_id"`
	Status     string   `json:"status"`
	Reason     string   `json:"reason,omitempty"`
	Subject    string   `json:"subject,omitempty"`
	Recipients []string `json:"recipients,omitempty"`
	WeeklyPct  float64  `json:"weekly_pct"`
	YTDPct     float64  `json:"ytd_pct"`
	Commented  []string `json:"commented,omitempty"`
	Files      []string `json:"files,omitempty"`
}

// RunReport summarises one newsletter run over all users
type RunReport struct {
	RunID      string       `json:"run_id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Users      []UserResult `json:"users"`
}

// Count returns the number of users with status
func (r *RunReport) Count(status string) int {
	n := 0
	for _, u := range r.Users {
		if u.Status == status {
			n++
		}
	}
	return n
}

// Service runs the newsletter pipeline for stored users
type Service struct {
	performance PerformanceSource
	holdings    interfaces.HoldingsStorage
	recap       *MarketRecap
	commentary  *CommentaryGenerator
	pdf         *PDFRenderer
	sender      interfaces.EmailSender
	config      *common.NewsletterConfig
	logger      arbor.ILogger
}

// NewService creates the newsletter service. llm and sender may be nil: the recap
// falls back to a placeholder, commentary is omitted and nothing is sent.
func NewService(
	performance PerformanceSource,
	holdings interfaces.HoldingsStorage,
	llm interfaces.ContentGenerator,
	sender interfaces.EmailSender,
	config *common.NewsletterConfig,
	llmConfig *common.LLMConfig,
	logger arbor.ILogger,
) *Service {
	s := &Service{
		performance: performance,
		holdings:    holdings,
		recap:       NewMarketRecap(llm, llmConfig.CommentaryModel, clockFunc(performance.Now), logger),
		pdf:         NewPDFRenderer(logger),
		sender:      sender,
		config:      config,
		logger:      logger,
	}
	if llm != nil {
		s.commentary = NewCommentaryGenerator(llm, llmConfig.CommentaryModel, logger)
	}
	return s
}

// RunAll sends the newsletter to every stored user. Per-user failures are recorded
// in the report; only a failure to list users or a cancelled context is returned.
func (s *Service) RunAll(ctx context.Context) (*RunReport, error) {
	users, err := s.holdings.ListAllUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	report := s.newReport()
	s.logger.Info().
		Str("run_id", report.RunID).
		Int("users", len(users)).
		Bool("dry_run", s.config.DryRun).
		Msg("Newsletter run started")

	for _, user := range users {
		if err := ctx.Err(); err != nil {
			report.FinishedAt = s.performance.Now()
			return report, err
		}
		report.Users = append(report.Users, s.runUser(ctx, report.RunID, user))
	}

	report.FinishedAt = s.performance.Now()
	s.logger.Info().
		Str("run_id", report.RunID).
		Int("sent", report.Count(StatusSent)).
		Int("skipped", report.Count(StatusSkipped)).
		Int("failed", report.Count(StatusFailed)).
		Int("dry_run", report.Count(StatusDryRun)).
		Dur("duration", report.FinishedAt.Sub(report.StartedAt)).
		Msg("Newsletter run completed")

	return report, nil
}

// RunUser sends the newsletter to a single stored user
func (s *Service) RunUser(ctx context.Context, userID string) (*RunReport, error) {
	user, err := s.holdings.LoadHoldings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load holdings for %s: %w", userID, err)
	}

	report := s.newReport()
	report.Users = append(report.Users, s.runUser(ctx, report.RunID, *user))
	report.FinishedAt = s.performance.Now()
	return report, nil
}

func (s *Service) newReport() *RunReport {
	return &RunReport{
		RunID:     uuid.New().String(),
		StartedAt: s.performance.Now(),
		Users:     []UserResult{},
	}
}

func (s *Service) runUser(ctx context.Context, runID string, user models.UserHoldings) UserResult {
	logger := s.logger.WithCorrelationId(runID)
	result := UserResult{UserID: user.UserID}

	skip := func(reason string) UserResult {
		result.Status = StatusSkipped
		result.Reason = reason
		logger.Warn().Str("user_id", user.UserID).Str("reason", reason).Msg("Newsletter skipped")
		return result
	}
	fail := func(err error) UserResult {
		result.Status = StatusFailed
		result.Reason = err.Error()
		logger.Error().Err(err).Str("user_id", user.UserID).Msg("Newsletter failed")
		return result
	}

	tickers := heldTickers(user.Holdings)
	if len(tickers) == 0 {
		return skip("no holdings")
	}

	weekly, err := s.performance.GetPeriodReport(ctx, tickers, "weekly", user.Holdings)
	if err != nil {
		return fail(err)
	}
	result.WeeklyPct = weekly.Performance.OverallChangePct

	if rate := weekly.Performance.SuccessRatePct; rate < s.config.MinSuccessRatePct {
		return skip(fmt.Sprintf("price success rate %.2f%% below %.2f%%", rate, s.config.MinSuccessRatePct))
	}
	if limit := s.config.SkipBelowWeeklyPct; limit != 0 && weekly.Performance.OverallChangePct < limit {
		return skip(fmt.Sprintf("weekly change %.2f%% below %.2f%%", weekly.Performance.OverallChangePct, limit))
	}

	ytd, err := s.performance.GetPeriodReport(ctx, tickers, "ytd", user.Holdings)
	if err != nil {
		return fail(err)
	}
	result.YTDPct = ytd.Performance.OverallChangePct

	now := s.performance.Now()
	letter := &Newsletter{
		Subject:       fmt.Sprintf("%s - %s", s.config.Subject, now.Format("Jan 02, 2006")),
		Date:          now,
		Intro:         IntroSummary(weekly.Performance, ytd.Performance, s.config.AdvisorURL),
		MarketRecap:   s.recap.Generate(ctx, tickers),
		Snapshot:      BuildSnapshot(user.Holdings, weekly.Results, ytd.Results),
		FailedTickers: weekly.Performance.FailedTickers,
	}
	letter.Holdings = s.holdingSections(ctx, logger, weekly.Results)
	for _, h := range letter.Holdings {
		result.Commented = append(result.Commented, h.Ticker)
	}
	result.Subject = letter.Subject

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	markdown := letter.Markdown()
	htmlBody, err := RenderHTML(markdown, letter.Subject, s.config.TemplatesDir)
	if err != nil {
		return fail(err)
	}
	message := &interfaces.EmailMessage{
		Subject:  letter.Subject,
		TextBody: RenderText(markdown),
		HTMLBody: htmlBody,
	}

	if s.config.AttachPDF {
		data, err := s.pdf.Render(markdown, letter.Subject)
		if err != nil {
			logger.Warn().Err(err).Str("user_id", user.UserID).Msg("PDF attachment failed, sending without it")
		} else {
			message.Attachments = append(message.Attachments, interfaces.EmailAttachment{
				Filename:    fmt.Sprintf("pulse-%s.pdf", now.Format(models.DateFormat)),
				ContentType: "application/pdf",
				Data:        data,
			})
		}
	}

	if s.config.OutputDir != "" {
		files, err := writeOutput(s.config.OutputDir, user.UserID, now, markdown, message)
		if err != nil {
			logger.Warn().Err(err).Str("dir", s.config.OutputDir).Msg("Failed to write newsletter output")
		}
		result.Files = files
	}

	message.To = recipientsFor(user.UserID, s.config.Recipients)
	result.Recipients = message.To

	if s.config.DryRun {
		result.Status = StatusDryRun
		logger.Info().
			Str("user_id", user.UserID).
			Str("subject", letter.Subject).
			Strs("recipients", message.To).
			Int("html_len", len(message.HTMLBody)).
			Msg("Dry run, newsletter not sent")
		return result
	}

	if len(message.To) == 0 {
		return skip("no recipients")
	}
	if s.sender == nil || !s.sender.IsConfigured(ctx) {
		return fail(errors.New("email sender is not configured"))
	}
	if err := s.sender.Send(ctx, message); err != nil {
		return fail(fmt.Errorf("failed to send newsletter: %w", err))
	}

	result.Status = StatusSent
	logger.Info().
		Str("user_id", user.UserID).
		Str("subject", letter.Subject).
		Strs("recipients", message.To).
		Float64("weekly_pct", result.WeeklyPct).
		Float64("ytd_pct", result.YTDPct).
		Msg("Newsletter sent")
	return result
}

// holdingSections writes commentary for the top AnalysisCount movers. Holdings
// whose commentary fails are left out.
func (s *Service) holdingSections(ctx context.Context, logger arbor.ILogger, results map[string]models.Result) []HoldingSection {
	if s.commentary == nil || s.config.AnalysisCount <= 0 {
		return nil
	}

	var records []models.PerformanceRecord
	for _, r := range results {
		if r.OK() {
			records = append(records, *r.Record)
		}
	}

	var sections []HoldingSection
	for _, record := range portfolio.RankMovers(records, s.config.AnalysisCount, portfolio.MoverStrategy(s.config.MoverStrategy)) {
		if ctx.Err() != nil {
			break
		}
		name := portfolio.CompanyName(record.Ticker)
		text, err := s.commentary.GenerateHoldingCommentary(ctx, record, name)
		if err != nil {
			logger.Warn().Err(err).Str("ticker", record.Ticker).Msg("Holding commentary skipped")
			continue
		}
		sections = append(sections, HoldingSection{
			Ticker:      record.Ticker,
			DisplayName: name,
			PctChange:   record.PctChange,
			Commentary:  text,
		})
	}
	return sections
}

func heldTickers(holdings models.Holdings) []string {
	var tickers []string
	for _, ticker := range holdings.Tickers() {
		if holdings[ticker] > 0 {
			tickers = append(tickers, ticker)
		}
	}
	return tickers
}

// recipientsFor returns the user's address, when the ID is one, followed by the
// configured extra recipients. Duplicates are dropped case-insensitively.
func recipientsFor(userID string, extra []string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(addr string) {
		addr = strings.TrimSpace(addr)
		key := strings.ToLower(addr)
		if addr == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, addr)
	}

	if strings.Contains(userID, "@") {
		add(userID)
	}
	for _, addr := range extra {
		add(addr)
	}
	return out
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func writeOutput(dir, userID string, now time.Time, markdown string, message *interfaces.EmailMessage) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	base := fmt.Sprintf("%s-%s", unsafeFileChars.ReplaceAllString(userID, "_"), now.Format(models.DateFormat))
	outputs := map[string][]byte{
		base + ".md":   []byte(markdown),
		base + ".html": []byte(message.HTMLBody),
	}
	for _, a := range message.Attachments {
		outputs[base+filepath.Ext(a.Filename)] = a.Data
	}

	var files []string
	for name, data := range outputs {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0644); err != nil {
			return files, fmt.Errorf("failed to write %s: %w", path, err)
		}
		files = append(files, path)
	}
	sort.Strings(files)
	return files, nil
}

type clockFunc func() time.Time

func (f clockFunc) Now() time.Time { return f() }

func (f clockFunc) After(d time.Duration) <-chan time.Time { return time.After(d) }
