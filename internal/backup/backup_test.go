package backup

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receiptledger/internal/core"
	"receiptledger/internal/storage"
)

func validDataset() core.Dataset {
	admin := int64(1)
	at := time.Date(2025, 4, 1, 9, 30, 0, 0, time.UTC)
	return core.Dataset{
		Users: []core.User{{ID: 1, Username: "admin", DisplayName: "O'Brien", Role: core.RoleAdmin, CreatedAt: at}},
		Tasks: []core.Task{{ID: 1, Name: "Roof", Status: core.TaskActive, CreatedBy: &admin, CreatedAt: at}},
		ReceiptBooks: []core.ReceiptBook{{
			ID: 1, BookNumber: "B-1", TaskID: 1, StartingReceiptNumber: 1, EndingReceiptNumber: 3,
			TotalReceipts: 3, Status: core.BookActive, CreatedAt: at,
		}},
		Receipts: []core.Receipt{
			{ID: 1, ReceiptNumber: 1, ReceiptBookID: 1, TaskID: 1, GiverName: "A", Address: "X", Amount: core.Money{Cents: 10000}, EnteredBy: 1, CreatedAt: at},
			{ID: 2, ReceiptNumber: 3, ReceiptBookID: 1, TaskID: 1, GiverName: "B", Address: "Y", Amount: core.Money{Cents: 25050}, EnteredBy: 1, CreatedAt: at},
		},
		ExpenseTypes: []core.ExpenseType{{ID: 1, Name: "Printing", Status: core.ExpenseTypeActive}},
		Expenses: []core.Expense{{ID: 1, ExpenseTypeID: 1, Amount: core.Money{Cents: 7525}, ExpenseDate: core.NewDate(2025, 4, 2), CreatedAt: at}},
		PublishedReports: []core.PublishedReport{{
			ID: 1, PublishedAt: at, PublishedBy: 1,
			ReportData: core.LedgerSnapshot{TotalIncome: core.Money{Cents: 35050}, TotalExpenses: core.Money{Cents: 7525}, CurrentBalance: core.Money{Cents: 27525}},
		}},
	}
}

func TestJSONRoundTrip(t *testing.T) {
	ds := validDataset()
	var buf bytes.Buffer
	require.NoError(t, EncodeJSON(&buf, ds, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)))

	assert.Contains(t, buf.String(), `"version": 1`)
	assert.Contains(t, buf.String(), `"amount": "250.50"`)
	assert.Contains(t, buf.String(), `"expenseDate": "2025-04-02"`)

	got, err := DecodeJSON(&buf)
	require.NoError(t, err)
	assert.Equal(t, ds, got)
}

func TestEncodeJSONWritesEmptyArrays(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeJSON(&buf, core.Dataset{}, time.Now()))
	assert.Contains(t, buf.String(), `"receipts": []`)
	assert.Contains(t, buf.String(), `"publishedReports": []`)
}

func TestDecodeJSONRejectsGarbageAndFutureVersions(t *testing.T) {
	_, err := DecodeJSON(strings.NewReader("{not json"))
	assert.ErrorIs(t, err, core.ErrInvalidSnapshot)

	_, err = DecodeJSON(strings.NewReader(`{"version": 99}`))
	assert.ErrorIs(t, err, core.ErrInvalidSnapshot)

	ds, err := DecodeJSON(strings.NewReader(`{"tasks": [{"id": 5, "name": "legacy", "status": "active"}]}`))
	require.NoError(t, err)
	require.Len(t, ds.Tasks, 1)
}

func TestEncodeSQL(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeSQL(&buf, validDataset(), storage.DialectSQLite, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)))
	out := buf.String()

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, "BEGIN;", lines[1])
	assert.Equal(t, "COMMIT;", lines[len(lines)-1])
	assert.Contains(t, out, "'O''Brien'")
	assert.Contains(t, out, "'2025-04-02'")
	assert.Contains(t, out, "INSERT INTO receipts (id, receipt_number, receipt_book_id, task_id, giver_name, address, phone_number, amount_cents, entered_by, created_at) VALUES (2, 3, 1, 1, 'B', 'Y', '', 25050, 1, '2025-04-01 09:30:00+00:00');")
	assert.Contains(t, out, "INSERT INTO tasks (id, name, description, status, created_by, created_at) VALUES (1, 'Roof', '', 'active', 1,")
	assert.Contains(t, out, "INSERT INTO expenses (id, expense_type_id, amount_cents, expense_date, description, entered_by, created_at) VALUES (1, 1, 7525, '2025-04-02', '', NULL,")

	// parents before children
	assert.Less(t, strings.Index(out, "INSERT INTO users"), strings.Index(out, "INSERT INTO tasks"))
	assert.Less(t, strings.Index(out, "INSERT INTO tasks"), strings.Index(out, "INSERT INTO receipt_books"))
	assert.Less(t, strings.Index(out, "INSERT INTO receipt_books"), strings.Index(out, "INSERT INTO receipts"))
	assert.Less(t, strings.Index(out, "INSERT INTO expense_types"), strings.Index(out, "INSERT INTO expenses"))
	assert.NotContains(t, out, "setval")
}

func TestEncodeSQLPostgresResyncsSequences(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeSQL(&buf, validDataset(), storage.DialectPostgres, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")

	assert.Equal(t, "COMMIT;", lines[len(lines)-1])
	assert.Equal(t, storage.SequenceResetSQL("published_reports")+";", lines[len(lines)-2])
	assert.Contains(t, buf.String(), storage.SequenceResetSQL("receipts")+";")
}

func TestValidateAcceptsConsistentDataset(t *testing.T) {
	assert.NoError(t, Validate(validDataset()))
	assert.NoError(t, Validate(core.Dataset{}))
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*core.Dataset)
		want   string
	}{
		{"dangling book", func(ds *core.Dataset) { ds.Receipts[0].ReceiptBookID = 42 }, "missing receipt book 42"},
		{"dangling user", func(ds *core.Dataset) { ds.Receipts[0].EnteredBy = 9 }, "missing user 9"},
		{"out of range", func(ds *core.Dataset) { ds.Receipts[0].ReceiptNumber = 4 }, "outside book 1 range"},
		{"task mismatch", func(ds *core.Dataset) {
			ds.Tasks = append(ds.Tasks, core.Task{ID: 2, Name: "Other", Status: core.TaskActive})
			ds.Receipts[0].TaskID = 2
		}, "differs from book 1 task 1"},
		{"duplicate number", func(ds *core.Dataset) { ds.Receipts[1].ReceiptNumber = 1 }, "share number 1"},
		{"duplicate id", func(ds *core.Dataset) { ds.Receipts[1].ID = 1 }, "duplicate receipt id 1"},
		{"bad amount", func(ds *core.Dataset) { ds.Expenses[0].Amount.Cents = 0 }, "non-positive amount"},
		{"bad enum", func(ds *core.Dataset) { ds.ReceiptBooks[0].Status = "lost" }, `unknown status "lost"`},
		{"dangling expense type", func(ds *core.Dataset) { ds.Expenses[0].ExpenseTypeID = 3 }, "missing expense type 3"},
		{"dangling publisher", func(ds *core.Dataset) { ds.PublishedReports[0].PublishedBy = 8 }, "missing user 8"},
		{"duplicate type name", func(ds *core.Dataset) {
			ds.ExpenseTypes = append(ds.ExpenseTypes, core.ExpenseType{ID: 2, Name: "Printing", Status: core.ExpenseTypeActive})
		}, `duplicate expense type name "Printing"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ds := validDataset()
			tc.mutate(&ds)
			err := Validate(ds)
			require.ErrorIs(t, err, core.ErrInvalidSnapshot)
			var ise *core.InvalidSnapshotError
			require.ErrorAs(t, err, &ise)
			assert.Contains(t, strings.Join(ise.Problems, "\n"), tc.want)
		})
	}
}
