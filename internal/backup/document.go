// Package backup encodes and validates whole-ledger documents used by export
// and restore.
package backup

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"receiptledger/internal/core"
)

// CurrentVersion is written into every exported document.
const CurrentVersion = 1

// Document is the structured export form. Collections sit at the top level
// next to the metadata.
type Document struct {
	Version    int       `json:"version"`
	ExportedAt time.Time `json:"exportedAt"`
	core.Dataset
}

// EncodeJSON writes ds as an indented JSON document.
func EncodeJSON(w io.Writer, ds core.Dataset, exportedAt time.Time) error {
	doc := Document{Version: CurrentVersion, ExportedAt: exportedAt.UTC(), Dataset: normalize(ds)}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode backup document: %w", err)
	}
	return nil
}

// DecodeJSON reads a document produced by EncodeJSON. Documents without
// metadata (version 0) are accepted; newer versions are not.
func DecodeJSON(r io.Reader) (core.Dataset, error) {
	var doc Document
	dec := json.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return core.Dataset{}, &core.InvalidSnapshotError{Problems: []string{"malformed document: " + err.Error()}}
	}
	if doc.Version > CurrentVersion {
		return core.Dataset{}, &core.InvalidSnapshotError{Problems: []string{
			fmt.Sprintf("unsupported document version %d (max %d)", doc.Version, CurrentVersion),
		}}
	}
	return doc.Dataset, nil
}

// normalize turns nil collections into empty ones so every array is present
// in the document.
func normalize(ds core.Dataset) core.Dataset {
	if ds.Users == nil {
		ds.Users = []core.User{}
	}
	if ds.Tasks == nil {
		ds.Tasks = []core.Task{}
	}
	if ds.ReceiptBooks == nil {
		ds.ReceiptBooks = []core.ReceiptBook{}
	}
	if ds.Receipts == nil {
		ds.Receipts = []core.Receipt{}
	}
	if ds.Expenses == nil {
		ds.Expenses = []core.Expense{}
	}
	if ds.ExpenseTypes == nil {
		ds.ExpenseTypes = []core.ExpenseType{}
	}
	if ds.PublishedReports == nil {
		ds.PublishedReports = []core.PublishedReport{}
	}
	return ds
}
