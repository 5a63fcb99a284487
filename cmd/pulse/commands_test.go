package main

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/pulse/internal/services/newsletter"
)

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("stdout closed") }

func testRunReport() *newsletter.RunReport {
	started := time.Date(2024, time.January, 8, 7, 0, 0, 0, time.UTC)
	return &newsletter.RunReport{
		RunID:      "run-1",
		StartedAt:  started,
		FinishedAt: started.Add(1500 * time.Millisecond),
		Users: []newsletter.UserResult{
			{UserID: "alice", Status: newsletter.StatusSent, WeeklyPct: 1.25, Recipients: []string{"alice@example.com"}, Files: []string{"data/alice.html"}},
			{UserID: "bob", Status: newsletter.StatusSkipped, WeeklyPct: -6.1, Reason: "weekly change below threshold"},
		},
	}
}

func TestPrintRunReport(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printRunReport(&out, testRunReport()))

	text := out.String()
	assert.Contains(t, text, "alice")
	assert.Contains(t, text, "+1.25%")
	assert.Contains(t, text, "run run-1: 1 sent, 1 skipped, 0 failed, 0 dry run in 1.5s")
	assert.Contains(t, text, "wrote data/alice.html")
}

func TestPrintRunReport_WriteError(t *testing.T) {
	err := printRunReport(failingWriter{}, testRunReport())
	assert.EqualError(t, err, "stdout closed")
}
