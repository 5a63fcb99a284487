package newsletter

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pulse/internal/common"
	"github.com/ternarybob/pulse/internal/interfaces"
	"github.com/ternarybob/pulse/internal/models"
	"github.com/ternarybob/pulse/internal/services/portfolio"
)

type stubPerformance struct {
	now     time.Time
	reports map[string]*portfolio.PeriodReport
	err     error
	calls   []string
}

func (s *stubPerformance) Now() time.Time { return s.now }

func (s *stubPerformance) GetPeriodReport(ctx context.Context, tickers []string, period string, holdings models.Holdings) (*portfolio.PeriodReport, error) {
	s.calls = append(s.calls, period)
	if s.err != nil {
		return nil, s.err
	}
	report, ok := s.reports[period]
	if !ok {
		return nil, errors.New("unknown period " + period)
	}
	return report, nil
}

type stubSender struct {
	configured bool
	err        error
	sent       []*interfaces.EmailMessage
}

func (s *stubSender) IsConfigured(ctx context.Context) bool { return s.configured }

func (s *stubSender) Send(ctx context.Context, message *interfaces.EmailMessage) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, message)
	return nil
}

type memoryHoldings struct {
	users []models.UserHoldings
}

func (m *memoryHoldings) SaveHoldings(ctx context.Context, userID string, holdings models.Holdings) error {
	m.users = append(m.users, models.UserHoldings{UserID: userID, Holdings: holdings})
	return nil
}

func (m *memoryHoldings) LoadHoldings(ctx context.Context, userID string) (*models.UserHoldings, error) {
	for _, u := range m.users {
		if u.UserID == userID {
			return &u, nil
		}
	}
	return nil, interfaces.ErrHoldingsNotFound
}

func (m *memoryHoldings) ListAllUsers(ctx context.Context) ([]models.UserHoldings, error) {
	return m.users, nil
}

func (m *memoryHoldings) DeleteUser(ctx context.Context, userID string) error {
	return nil
}

func periodReport(period string, overall, successRate float64, records ...models.PerformanceRecord) *portfolio.PeriodReport {
	results := make(map[string]models.Result)
	var movers []string
	for _, r := range records {
		results[r.Ticker] = models.Success(r)
		movers = append(movers, portfolio.FormatMover(r))
	}
	return &portfolio.PeriodReport{
		Period:  period,
		Results: results,
		Performance: models.PortfolioPerformance{
			Period:           period,
			OverallChangePct: overall,
			SuccessRatePct:   successRate,
			MajorMovers:      movers,
			FailedTickers:    []string{},
		},
	}
}

// commentaryReply answers commentary prompts with valid bullets and recap prompts with one bullet
func commentaryReply(request *interfaces.ContentRequest) (*interfaces.ContentResponse, error) {
	prompt := request.Messages[0].Content
	if strings.Contains(prompt, "Weekly Market Update") {
		return &interfaces.ContentResponse{Text: "- Markets rallied [src](https://news.example)"}, nil
	}
	if strings.Contains(prompt, "(MSFT)") {
		return &interfaces.ContentResponse{Text: "MSFT had a week."}, nil
	}
	return &interfaces.ContentResponse{Text: commentaryText("rose", "4.00%")}, nil
}

type fixture struct {
	perf     *stubPerformance
	holdings *memoryHoldings
	llm      *stubGenerator
	sender   *stubSender
	config   *common.NewsletterConfig
}

func newFixture() *fixture {
	now := time.Date(2025, 3, 10, 7, 0, 0, 0, time.UTC)
	config := common.NewDefaultConfig().Newsletter
	config.Recipients = []string{"desk@example.com", "ALICE@example.com"}

	return &fixture{
		perf: &stubPerformance{
			now: now,
			reports: map[string]*portfolio.PeriodReport{
				"weekly": periodReport("weekly", 2.5, 100,
					models.NewPerformanceRecord("AAPL", "weekly", "2025-03-03", 100, "2025-03-10", 104),
					models.NewPerformanceRecord("MSFT", "weekly", "2025-03-03", 100, "2025-03-10", 99),
				),
				"ytd": periodReport("ytd", 8, 100,
					models.NewPerformanceRecord("AAPL", "ytd", "2025-01-02", 90, "2025-03-10", 104),
				),
			},
		},
		holdings: &memoryHoldings{users: []models.UserHoldings{
			{UserID: "alice@example.com", Holdings: models.Holdings{"AAPL": 10, "MSFT": 5}},
		}},
		llm:    &stubGenerator{reply: commentaryReply},
		sender: &stubSender{configured: true},
		config: &config,
	}
}

func (f *fixture) service() *Service {
	return NewService(f.perf, f.holdings, f.llm, f.sender, f.config, &common.LLMConfig{CommentaryModel: "gemini-2.5-flash"}, arbor.NewLogger())
}

func TestService_RunAll_Sends(t *testing.T) {
	f := newFixture()

	report, err := f.service().RunAll(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, report.RunID)
	require.Len(t, report.Users, 1)

	result := report.Users[0]
	assert.Equal(t, StatusSent, result.Status)
	assert.Equal(t, "Weekly Market Pulse - Mar 10, 2025", result.Subject)
	assert.Equal(t, 2.5, result.WeeklyPct)
	assert.Equal(t, 8.0, result.YTDPct)
	// MSFT commentary lacks the required sections and is left out
	assert.Equal(t, []string{"AAPL"}, result.Commented)
	assert.Equal(t, []string{"weekly", "ytd"}, f.perf.calls)

	require.Len(t, f.sender.sent, 1)
	msg := f.sender.sent[0]
	assert.Equal(t, []string{"alice@example.com", "desk@example.com"}, msg.To)
	assert.Contains(t, msg.HTMLBody, "Markets rallied")
	assert.Contains(t, msg.HTMLBody, "Apple Inc. (AAPL)")
	assert.NotContains(t, msg.HTMLBody, "MSFT had a week")
	assert.Contains(t, msg.TextBody, "This week your portfolio increased by 2.50%.")
	assert.Empty(t, msg.Attachments)
	assert.Equal(t, 1, report.Count(StatusSent))
}

func TestService_SkipRules(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(f *fixture)
		wantStatus string
		wantReason string
	}{
		{
			name: "no holdings",
			mutate: func(f *fixture) {
				f.holdings.users[0].Holdings = models.Holdings{"AAPL": 0}
			},
			wantStatus: StatusSkipped,
			wantReason: "no holdings",
		},
		{
			name: "low success rate",
			mutate: func(f *fixture) {
				f.perf.reports["weekly"].Performance.SuccessRatePct = 40
			},
			wantStatus: StatusSkipped,
			wantReason: "price success rate 40.00% below 50.00%",
		},
		{
			name: "weekly loss below threshold",
			mutate: func(f *fixture) {
				f.perf.reports["weekly"].Performance.OverallChangePct = -6
			},
			wantStatus: StatusSkipped,
			wantReason: "weekly change -6.00% below -5.00%",
		},
		{
			name: "threshold disabled",
			mutate: func(f *fixture) {
				f.perf.reports["weekly"].Performance.OverallChangePct = -6
				f.config.SkipBelowWeeklyPct = 0
			},
			wantStatus: StatusSent,
		},
		{
			name: "no recipients",
			mutate: func(f *fixture) {
				f.holdings.users[0].UserID = "alice"
				f.config.Recipients = nil
			},
			wantStatus: StatusSkipped,
			wantReason: "no recipients",
		},
		{
			name: "price source error",
			mutate: func(f *fixture) {
				f.perf.err = errors.New("provider offline")
			},
			wantStatus: StatusFailed,
			wantReason: "provider offline",
		},
		{
			name: "sender not configured",
			mutate: func(f *fixture) {
				f.sender.configured = false
			},
			wantStatus: StatusFailed,
			wantReason: "email sender is not configured",
		},
		{
			name: "send failure",
			mutate: func(f *fixture) {
				f.sender.err = errors.New("smtp 550")
			},
			wantStatus: StatusFailed,
			wantReason: "failed to send newsletter: smtp 550",
		},
		{
			name: "dry run",
			mutate: func(f *fixture) {
				f.config.DryRun = true
				f.sender.configured = false
			},
			wantStatus: StatusDryRun,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			tt.mutate(f)

			report, err := f.service().RunAll(context.Background())
			require.NoError(t, err)
			require.Len(t, report.Users, 1)
			assert.Equal(t, tt.wantStatus, report.Users[0].Status)
			assert.Equal(t, tt.wantReason, report.Users[0].Reason)
			if tt.wantStatus != StatusSent {
				assert.Empty(t, f.sender.sent)
			}
		})
	}
}

func TestService_FailureIsolatedPerUser(t *testing.T) {
	f := newFixture()
	f.holdings.users = append(f.holdings.users, models.UserHoldings{UserID: "bob@example.com", Holdings: models.Holdings{}})

	report, err := f.service().RunAll(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Users, 2)
	assert.Equal(t, StatusSent, report.Users[0].Status)
	assert.Equal(t, StatusSkipped, report.Users[1].Status)
	assert.Equal(t, 1, report.Count(StatusSkipped))
}

func TestService_NoLLM(t *testing.T) {
	f := newFixture()
	svc := NewService(f.perf, f.holdings, nil, f.sender, f.config, &common.LLMConfig{}, arbor.NewLogger())

	report, err := svc.RunUser(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, StatusSent, report.Users[0].Status)
	assert.Empty(t, report.Users[0].Commented)

	require.Len(t, f.sender.sent, 1)
	assert.Contains(t, f.sender.sent[0].TextBody, RecapPlaceholder)

	_, err = svc.RunUser(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, interfaces.ErrHoldingsNotFound)
}

func TestService_AttachmentAndOutput(t *testing.T) {
	f := newFixture()
	f.config.AttachPDF = true
	f.config.OutputDir = t.TempDir()

	report, err := f.service().RunAll(context.Background())
	require.NoError(t, err)

	result := report.Users[0]
	assert.Equal(t, StatusSent, result.Status)
	require.Len(t, result.Files, 3)
	for _, path := range result.Files {
		assert.Contains(t, path, "alice_example.com-2025-03-10")
		_, statErr := os.Stat(path)
		assert.NoError(t, statErr)
	}

	require.Len(t, f.sender.sent[0].Attachments, 1)
	attachment := f.sender.sent[0].Attachments[0]
	assert.Equal(t, "pulse-2025-03-10.pdf", attachment.Filename)
	assert.Equal(t, "application/pdf", attachment.ContentType)
	assert.True(t, strings.HasPrefix(string(attachment.Data), "%PDF-"))
}

func TestService_CancelledContext(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := f.service().RunAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Empty(t, report.Users)
	assert.Empty(t, f.sender.sent)
}

func TestRecipientsFor(t *testing.T) {
	assert.Equal(t, []string{"a@x.com", "B@x.com"}, recipientsFor("a@x.com", []string{"B@x.com", "b@x.com", "A@X.COM", ""}))
	assert.Nil(t, recipientsFor("user-1", nil))
}
