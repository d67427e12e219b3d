package sheets

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labelqc/internal/quality"
)

func TestExtractSpreadsheetID(t *testing.T) {
	id, err := extractSpreadsheetID("https://docs.google.com/spreadsheets/d/1AbC-d_9/edit#gid=0")
	require.NoError(t, err)
	assert.Equal(t, "1AbC-d_9", id)

	_, err = extractSpreadsheetID("https://example.com/not-a-sheet")
	assert.Error(t, err)
}

func TestColumnName(t *testing.T) {
	for n, want := range map[int]string{1: "A", 11: "K", 26: "Z", 27: "AA", 52: "AZ", 53: "BA"} {
		assert.Equal(t, want, columnName(n), "column %d", n)
	}
}

func TestSheetRange(t *testing.T) {
	require.Len(t, Headers, 11)
	assert.Equal(t, "Issues!A1:K1", sheetRange("Issues", true))
	assert.Equal(t, "Issues!A:K", sheetRange("Issues", false))
}

func TestIssueRows(t *testing.T) {
	page := 0
	issues := []quality.Issue{quality.NewIssue(quality.IssueSpec{
		RuleID:    "R009",
		Severity:  quality.SeverityWarning,
		Message:   "'원문' must be labeled ParaText",
		FilePath:  "a_visualinfo.json",
		ElementID: "e1",
		PageIndex: &page,
		Category:  quality.CategoryLabelType,
	})}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	rows := issueRows("run-1", issues, at)
	require.Len(t, rows, 1)
	assert.Equal(t, []interface{}{
		"run-1", "a_visualinfo.json", "R009", "warning", "label_type", "e1", "1",
		"'원문' must be labeled ParaText", "", "false", "2026-01-02 03:04:05",
	}, rows[0])
}

func TestNewSheetsService_NeedsCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	t.Setenv("GOOGLE_CREDENTIALS", "")

	_, err := NewSheetsService(context.Background(), "https://docs.google.com/spreadsheets/d/abc/edit")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GOOGLE_CREDENTIALS")

	_, err = NewSheetsService(context.Background(), "not a url")
	assert.Error(t, err)
}
