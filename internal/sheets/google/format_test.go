package google

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receiptledger/internal/core"
)

func TestReportRow(t *testing.T) {
	r := core.PublishedReport{
		ID:          7,
		PublishedAt: time.Date(2025, 4, 2, 9, 30, 0, 0, time.FixedZone("CET", 3600)),
		PublishedBy: 3,
		ReportData: core.LedgerSnapshot{
			TotalIncome:    core.Money{Cents: 35050},
			TotalExpenses:  core.Money{Cents: 7525},
			CurrentBalance: core.Money{Cents: 27525},
			IncomeByTask: []core.TaskIncome{
				{TaskID: 1, TaskName: "Roof", Total: core.Money{Cents: 35050}, ReceiptBookCount: 2},
				{TaskID: 2, TaskName: "Library", Total: core.Money{}, ReceiptBookCount: 0},
			},
		},
	}

	row := reportRow(r)
	assert.Equal(t, []any{
		int64(7),
		"2025-04-02T08:30:00Z",
		int64(3),
		"350.50",
		"75.25",
		"275.25",
		"Roof: 350.50; Library: 0.00",
	}, row)
}

func TestParseReportIDs(t *testing.T) {
	values := [][]any{
		{"Report ID", "Published At"},
		{"1"},
		{},
		{"  2 "},
		{"n/a"},
		{float64(4)},
		{"-5"},
	}
	assert.Equal(t, map[int64]struct{}{1: {}, 2: {}, 4: {}}, parseReportIDs(values))
}

func TestNewRequiresSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.Error(t, err)
	assert.Equal(t, "missing GOOGLE_SPREADSHEET_ID", err.Error())
}

func TestNewRejectsMissingCredentialsFile(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	_, err := New(context.Background(), Config{SpreadsheetID: "sheet", CredentialsFile: "/nonexistent/sa.json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read service account file")
}

func TestClientWithoutServiceFails(t *testing.T) {
	c := &Client{spreadsheetID: "sheet", reportsSheet: "Reports"}
	_, err := c.AppendReport(context.Background(), core.PublishedReport{ID: 1})
	assert.Error(t, err)
	_, err = c.MirroredReportIDs(context.Background())
	assert.Error(t, err)
}
