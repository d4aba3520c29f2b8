package google

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"receiptledger/internal/core"
)

// reportRow lays out a report as: id, published at, published by, income,
// expenses, balance, per-task income.
func reportRow(r core.PublishedReport) []any {
	parts := make([]string, 0, len(r.ReportData.IncomeByTask))
	for _, ti := range r.ReportData.IncomeByTask {
		parts = append(parts, fmt.Sprintf("%s: %s", ti.TaskName, ti.Total.String()))
	}
	return []any{
		r.ID,
		r.PublishedAt.UTC().Format(time.RFC3339),
		r.PublishedBy,
		r.ReportData.TotalIncome.String(),
		r.ReportData.TotalExpenses.String(),
		r.ReportData.CurrentBalance.String(),
		strings.Join(parts, "; "),
	}
}

// parseReportIDs collects numeric ids from the first column, skipping the
// header and any blank or non-numeric cells.
func parseReportIDs(values [][]any) map[int64]struct{} {
	ids := make(map[int64]struct{}, len(values))
	for _, row := range values {
		if len(row) == 0 {
			continue
		}
		v := strings.TrimSpace(fmt.Sprint(row[0]))
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		ids[id] = struct{}{}
	}
	return ids
}
