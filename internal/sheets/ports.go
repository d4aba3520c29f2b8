package sheets

import (
	"context"

	"receiptledger/internal/core"
)

// Ports for outbound adapters.
type (
	// ReportWriter appends a published report to an external mirror.
	ReportWriter interface {
		AppendReport(ctx context.Context, r core.PublishedReport) (rowRef string, err error)
	}

	// ReportIndex lists the report ids a mirror already holds, so a
	// redelivered event does not produce a second row.
	ReportIndex interface {
		MirroredReportIDs(ctx context.Context) (map[int64]struct{}, error)
	}

	ReportMirror interface {
		ReportWriter
		ReportIndex
	}
)
