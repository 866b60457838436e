package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	Income  TransactionType = "INCOME"
	Expense TransactionType = "EXPENSE"
)

const (
	MaxDescriptionLength = 200
	MaxNameLength        = 100

	dateLayout = "2006-01-02"
)

type (
	TransactionType string

	// Date is a civil day stored at UTC midnight.
	Date struct {
		time.Time
	}

	Transaction struct {
		ID              int64           `json:"id"`
		Amount          decimal.Decimal `json:"amount"`
		Description     string          `json:"description"`
		CategoryID      *int64          `json:"category_id"`
		PaymentMethodID *int64          `json:"payment_method_id"`
		Date            Date            `json:"date"`
		Type            TransactionType `json:"type"`
		CreatedAt       time.Time       `json:"created_at"`
	}

	// TransactionDetails is a transaction with its category and payment
	// method names resolved. Names are empty when the reference is gone.
	TransactionDetails struct {
		Transaction
		CategoryName      string `json:"category_name"`
		PaymentMethodName string `json:"payment_method_name"`
	}

	Category struct {
		ID        int64           `json:"id"`
		Name      string          `json:"name"`
		ParentID  *int64          `json:"parent_id"`
		Type      TransactionType `json:"type"`
		CreatedAt time.Time       `json:"created_at"`
	}

	PaymentMethod struct {
		ID        int64     `json:"id"`
		Name      string    `json:"name"`
		CreatedAt time.Time `json:"created_at"`
	}

	// TransactionInput is the form payload for creating or replacing a
	// transaction. Pointer fields distinguish "missing" from zero.
	TransactionInput struct {
		Amount          *decimal.Decimal `json:"amount"`
		Description     string           `json:"description"`
		CategoryID      *int64           `json:"category_id"`
		PaymentMethodID *int64           `json:"payment_method_id"`
		Date            *Date            `json:"date"`
		Type            TransactionType  `json:"type"`
	}

	CategoryInput struct {
		Name     string          `json:"name"`
		ParentID *int64          `json:"parent_id"`
		Type     TransactionType `json:"type"`
	}

	PaymentMethodInput struct {
		Name string `json:"name"`
	}
)

var (
	ErrMissingAmount        = errors.New("amount is required")
	ErrNegativeAmount       = errors.New("amount must not be negative")
	ErrAmountTooLarge       = errors.New("amount must be below 1000000000000")
	ErrMissingDate          = errors.New("date is required")
	ErrMissingCategory      = errors.New("category is required")
	ErrMissingPaymentMethod = errors.New("payment method is required")
	ErrInvalidType          = errors.New("type must be INCOME or EXPENSE")
	ErrDescriptionTooLong   = fmt.Errorf("description exceeds %d characters", MaxDescriptionLength)
	ErrEmptyName            = errors.New("name is required")
	ErrNameTooLong          = fmt.Errorf("name exceeds %d characters", MaxNameLength)
	ErrCategoryTypeMismatch = errors.New("category type does not match transaction type")
	ErrCategoryInUse        = errors.New("category type cannot change while transactions use it")
	ErrInvalidDate          = errors.New("invalid date")

	ErrNotFound = errors.New("not found")
)

func (t TransactionType) IsValid() bool {
	return t == Income || t == Expense
}

// NewDate returns the civil day y-m-d at UTC midnight.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its civil day in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses an ISO calendar date (YYYY-MM-DD).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

// Validate rejects the zero date.
func (d Date) Validate() error {
	if d.IsZero() {
		return ErrMissingDate
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) Before(o Date) bool { return d.Time.Before(o.Time) }
func (d Date) After(o Date) bool { return d.Time.After(o.Time) }

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	// Accept full timestamps too; only the civil day is kept.
	if len(s) > len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Validate checks the fields the entry form requires before anything
// reaches the store.
func (in TransactionInput) Validate() error {
	if in.Amount == nil {
		return ErrMissingAmount
	}
	if in.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	if in.Amount.Round(2).GreaterThanOrEqual(MaxAmount) {
		return ErrAmountTooLarge
	}
	if in.Date == nil {
		return ErrMissingDate
	}
	if err := in.Date.Validate(); err != nil {
		return err
	}
	if in.CategoryID == nil {
		return ErrMissingCategory
	}
	if in.PaymentMethodID == nil {
		return ErrMissingPaymentMethod
	}
	if !in.Type.IsValid() {
		return ErrInvalidType
	}
	if utf8.RuneCountInString(in.Description) > MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	return nil
}

// Transaction builds the record to persist. Call Validate first.
func (in TransactionInput) Transaction() Transaction {
	t := Transaction{
		Description:     strings.TrimSpace(in.Description),
		CategoryID:      in.CategoryID,
		PaymentMethodID: in.PaymentMethodID,
		Type:            in.Type,
	}
	if in.Amount != nil {
		t.Amount = in.Amount.Round(2)
	}
	if in.Date != nil {
		t.Date = *in.Date
	}
	return t
}

func (in CategoryInput) Validate() error {
	if err := validateName(in.Name); err != nil {
		return err
	}
	if !in.Type.IsValid() {
		return ErrInvalidType
	}
	return nil
}

func (in CategoryInput) Category() Category {
	return Category{Name: strings.TrimSpace(in.Name), ParentID: in.ParentID, Type: in.Type}
}

func (in PaymentMethodInput) Validate() error {
	return validateName(in.Name)
}

func (in PaymentMethodInput) PaymentMethod() PaymentMethod {
	return PaymentMethod{Name: strings.TrimSpace(in.Name)}
}

func validateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return ErrNameTooLong
	}
	return nil
}

// Plain strips resolved names from a list of details.
func Plain(details []TransactionDetails) []Transaction {
	out := make([]Transaction, len(details))
	for i, d := range details {
		out[i] = d.Transaction
	}
	return out
}
