package core

import (
	"errors"
	"strings"
	"time"
)

const (
	RoleAdmin     Role = "admin"
	RoleManager   Role = "manager"
	RoleCollector Role = "collector"

	TaskActive    TaskStatus = "active"
	TaskInactive  TaskStatus = "inactive"
	TaskCompleted TaskStatus = "completed"

	BookActive    BookStatus = "active"
	BookAssigned  BookStatus = "assigned"
	BookCompleted BookStatus = "completed"

	ExpenseTypeActive   ExpenseTypeStatus = "active"
	ExpenseTypeInactive ExpenseTypeStatus = "inactive"
)

type (
	Role              string
	TaskStatus        string
	BookStatus        string
	ExpenseTypeStatus string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	User struct {
		ID           int64     `json:"id"`
		Username     string    `json:"username"`
		DisplayName  string    `json:"displayName"`
		Role         Role      `json:"role"`
		PasswordHash string    `json:"passwordHash"`
		CreatedAt    time.Time `json:"createdAt"`
	}

	Task struct {
		ID          int64      `json:"id"`
		Name        string     `json:"name"`
		Description string     `json:"description"`
		Status      TaskStatus `json:"status"`
		CreatedBy   *int64     `json:"createdBy"`
		CreatedAt   time.Time  `json:"createdAt"`
	}

	ReceiptBook struct {
		ID                    int64      `json:"id"`
		BookNumber            string     `json:"bookNumber"`
		TaskID                int64      `json:"taskId"`
		AssignedTo            *int64     `json:"assignedTo"`
		StartingReceiptNumber int64      `json:"startingReceiptNumber"`
		EndingReceiptNumber   int64      `json:"endingReceiptNumber"`
		TotalReceipts         int64      `json:"totalReceipts"`
		Status                BookStatus `json:"status"`
		CreatedAt             time.Time  `json:"createdAt"`
	}

	Receipt struct {
		ID            int64     `json:"id"`
		ReceiptNumber int64     `json:"receiptNumber"`
		ReceiptBookID int64     `json:"receiptBookId"`
		TaskID        int64     `json:"taskId"`
		GiverName     string    `json:"giverName"`
		Address       string    `json:"address"`
		PhoneNumber   string    `json:"phoneNumber,omitempty"`
		Amount        Money     `json:"amount"`
		EnteredBy     int64     `json:"enteredBy"`
		CreatedAt     time.Time `json:"createdAt"`
	}

	ExpenseType struct {
		ID        int64             `json:"id"`
		Name      string            `json:"name"`
		Status    ExpenseTypeStatus `json:"status"`
		CreatedBy *int64            `json:"createdBy"`
	}

	Expense struct {
		ID            int64     `json:"id"`
		ExpenseTypeID int64     `json:"expenseTypeId"`
		Amount        Money     `json:"amount"`
		ExpenseDate   Date      `json:"expenseDate"`
		Description   string    `json:"description"`
		EnteredBy     *int64    `json:"enteredBy"`
		CreatedAt     time.Time `json:"createdAt"`
	}

	PublishedReport struct {
		ID          int64          `json:"id"`
		ReportData  LedgerSnapshot `json:"reportData"`
		PublishedAt time.Time      `json:"publishedAt"`
		PublishedBy int64          `json:"publishedBy"`
	}

	// Dataset is a complete copy of every persisted collection, the unit of
	// backup export and restore.
	Dataset struct {
		Users            []User            `json:"users"`
		Tasks            []Task            `json:"tasks"`
		ReceiptBooks     []ReceiptBook     `json:"receiptBooks"`
		Receipts         []Receipt         `json:"receipts"`
		Expenses         []Expense         `json:"expenses"`
		ExpenseTypes     []ExpenseType     `json:"expenseTypes"`
		PublishedReports []PublishedReport `json:"publishedReports"`
	}

	// Actor is the authenticated caller handed in by the surrounding application.
	Actor struct {
		UserID int64
		Role   Role
	}
)

var (
	ErrInvalidDay       = errors.New("invalid day")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
)

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleCollector:
		return true
	}
	return false
}

func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskActive, TaskInactive, TaskCompleted:
		return true
	}
	return false
}

func (s BookStatus) IsValid() bool {
	switch s {
	case BookActive, BookAssigned, BookCompleted:
		return true
	}
	return false
}

func (s ExpenseTypeStatus) IsValid() bool {
	switch s {
	case ExpenseTypeActive, ExpenseTypeInactive:
		return true
	}
	return false
}

// CanManage reports whether the actor may perform manager-level mutations.
func (a Actor) CanManage() bool {
	return a.Role == RoleAdmin || a.Role == RoleManager
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

const dateLayout = "2006-01-02"

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		// Accept full timestamps from older exports.
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return err
		}
	}
	*d = NewDate(t.Year(), int(t.Month()), t.Day())
	return nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// TotalReceiptsFor derives the number of slots in an inclusive range.
func TotalReceiptsFor(start, end int64) int64 {
	return end - start + 1
}

// Validate checks the book's own fields. TotalReceipts is derived and is
// overwritten rather than checked.
func (b *ReceiptBook) Validate() error {
	var fields []FieldError
	if strings.TrimSpace(b.BookNumber) == "" {
		fields = append(fields, FieldError{Field: "bookNumber", Message: "is required"})
	}
	if b.TaskID <= 0 {
		fields = append(fields, FieldError{Field: "taskId", Message: "is required"})
	}
	if b.StartingReceiptNumber <= 0 {
		fields = append(fields, FieldError{Field: "startingReceiptNumber", Message: "must be positive"})
	}
	if b.EndingReceiptNumber < b.StartingReceiptNumber {
		fields = append(fields, FieldError{Field: "endingReceiptNumber", Message: "must not be below startingReceiptNumber"})
	}
	if b.Status != "" && !b.Status.IsValid() {
		fields = append(fields, FieldError{Field: "status", Message: "unknown status " + string(b.Status)})
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	b.TotalReceipts = TotalReceiptsFor(b.StartingReceiptNumber, b.EndingReceiptNumber)
	return nil
}

// Contains reports whether n lies inside the book's inclusive range.
func (b ReceiptBook) Contains(n int64) bool {
	return n >= b.StartingReceiptNumber && n <= b.EndingReceiptNumber
}

func (r Receipt) Validate() error {
	var fields []FieldError
	if strings.TrimSpace(r.GiverName) == "" {
		fields = append(fields, FieldError{Field: "giverName", Message: "is required"})
	}
	if len(r.GiverName) > 200 {
		fields = append(fields, FieldError{Field: "giverName", Message: "too long (max 200 characters)"})
	}
	if strings.TrimSpace(r.Address) == "" {
		fields = append(fields, FieldError{Field: "address", Message: "is required"})
	}
	if len(r.PhoneNumber) > 32 {
		fields = append(fields, FieldError{Field: "phoneNumber", Message: "too long (max 32 characters)"})
	}
	if err := r.Amount.Validate(); err != nil {
		fields = append(fields, FieldError{Field: "amount", Message: "must be positive"})
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func (t Task) Validate() error {
	var fields []FieldError
	if strings.TrimSpace(t.Name) == "" {
		fields = append(fields, FieldError{Field: "name", Message: "is required"})
	}
	if t.Status != "" && !t.Status.IsValid() {
		fields = append(fields, FieldError{Field: "status", Message: "unknown status " + string(t.Status)})
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func (et ExpenseType) Validate() error {
	var fields []FieldError
	if strings.TrimSpace(et.Name) == "" {
		fields = append(fields, FieldError{Field: "name", Message: "is required"})
	}
	if et.Status != "" && !et.Status.IsValid() {
		fields = append(fields, FieldError{Field: "status", Message: "unknown status " + string(et.Status)})
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func (e Expense) Validate() error {
	var fields []FieldError
	if e.ExpenseTypeID <= 0 {
		fields = append(fields, FieldError{Field: "expenseTypeId", Message: "is required"})
	}
	if err := e.ExpenseDate.Validate(); err != nil {
		fields = append(fields, FieldError{Field: "expenseDate", Message: err.Error()})
	}
	if len(e.Description) > 500 {
		fields = append(fields, FieldError{Field: "description", Message: "too long (max 500 characters)"})
	}
	if err := e.Amount.Validate(); err != nil {
		fields = append(fields, FieldError{Field: "amount", Message: "must be positive"})
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
