package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldOperationID = "operation_id"
	FieldActor       = "actor_id"
	FieldRole        = "role"
	FieldDuration    = "duration_ms"
	FieldSuccess     = "success"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldBookID      = "book_id"
	FieldReceiptID   = "receipt_id"
	FieldReceiptNo   = "receipt_number"
	FieldTaskID      = "task_id"
	FieldReportID    = "report_id"
	FieldAmountCents = "amount_cents"
	FieldEventType   = "event_type"
	FieldRowCounts   = "rows"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentLedger  = "ledger"
	ComponentBackup  = "backup"
	ComponentStorage = "storage"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
	ComponentSheets  = "sheets"
	ComponentCache   = "cache"
	ComponentBackend = "backend"
	ComponentCLI     = "cli"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpRead     = "read"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpList     = "list"
	OpAllocate = "allocate"
	OpPublish  = "publish"
	OpExport   = "export"
	OpRestore  = "restore"
	OpMirror   = "mirror"
	OpValidate = "validate"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeAuth          = "auth_error"
	ErrorTypeTimeout       = "timeout_error"
	ErrorTypeNotFound      = "not_found_error"
	ErrorTypeConflict      = "conflict_error"
	ErrorTypeInternal      = "internal_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

func (f LogFields) WithActor(id int64, role string) LogFields {
	f[FieldActor] = id
	f[FieldRole] = role
	return f
}

// WithReceipt adds the receipt identity and amount.
func (f LogFields) WithReceipt(id, bookID, number, amountCents int64) LogFields {
	f[FieldReceiptID] = id
	f[FieldBookID] = bookID
	f[FieldReceiptNo] = number
	f[FieldAmountCents] = amountCents
	return f
}

func (f LogFields) WithDuration(ms int64, success bool) LogFields {
	f[FieldDuration] = ms
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
