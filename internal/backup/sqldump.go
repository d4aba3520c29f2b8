package backup

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"receiptledger/internal/core"
	"receiptledger/internal/storage"
)

const sqlTimeLayout = "2006-01-02 15:04:05.999999999-07:00"

// EncodeSQL writes ds as INSERT statements, one per row, parents before
// children, wrapped in a single transaction. For postgres the id sequences
// are moved past the loaded rows before the commit.
func EncodeSQL(w io.Writer, ds core.Dataset, dialect storage.Dialect, exportedAt time.Time) error {
	tables, err := storage.DatasetRows(ds)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "-- receiptledger backup version %d for %s exported %s\n", CurrentVersion, dialect, exportedAt.UTC().Format(time.RFC3339))
	bw.WriteString("BEGIN;\n")
	for _, t := range tables {
		cols := strings.Join(t.Columns, ", ")
		for _, row := range t.Rows {
			vals := make([]string, len(row))
			for i, v := range row {
				vals[i] = sqlLiteral(t.Columns[i], v)
			}
			fmt.Fprintf(bw, "INSERT INTO %s (%s) VALUES (%s);\n", t.Table, cols, strings.Join(vals, ", "))
		}
	}
	if dialect == storage.DialectPostgres {
		for _, t := range tables {
			bw.WriteString(storage.SequenceResetSQL(t.Table) + ";\n")
		}
	}
	bw.WriteString("COMMIT;\n")
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write sql backup: %w", err)
	}
	return nil
}

func sqlLiteral(column string, v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case int64:
		return strconv.FormatInt(x, 10)
	case string:
		return quote(x)
	case time.Time:
		if strings.HasSuffix(column, "_date") {
			return quote(x.Format("2006-01-02"))
		}
		return quote(x.UTC().Format(sqlTimeLayout))
	default:
		return quote(fmt.Sprint(x))
	}
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
