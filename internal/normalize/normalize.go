// Package normalize canonicalizes collaborator records into the common shape
// used by the matching pipeline: amounts as signed minor currency units,
// dates truncated to calendar days, descriptions lower-cased with collapsed
// whitespace.
package normalize

import (
	"strings"
	"time"

	"github.com/quillbooks/reconcile/internal/common"
	"github.com/quillbooks/reconcile/internal/model"
	"github.com/shopspring/decimal"
)

// RecordKind identifies the source type of a raw record.
type RecordKind string

// Raw record kinds accepted from collaborators.
const (
	KindTransaction RecordKind = "transaction"
	KindExpense     RecordKind = "expense"
	KindInvoice     RecordKind = "invoice"
)

// RawRecord is a collaborator-supplied record before canonicalization. It is
// already parsed out of its source document, but sign conventions, date
// layouts, and description casing vary by source.
type RawRecord struct {
	Kind        RecordKind `json:"kind"`
	ID          string     `json:"id"`
	TenantID    string     `json:"tenant_id"`
	Amount      string     `json:"amount"` // Decimal string in major units
	Currency    string     `json:"currency"`
	Direction   string     `json:"direction,omitempty"` // debit or credit, banks only
	Date        string     `json:"date"`
	Description string     `json:"description"`
	Counterpart string     `json:"counterpart,omitempty"`
	Provider    string     `json:"provider,omitempty"`
	InvoiceID   string     `json:"invoice_id,omitempty"`
	Source      string     `json:"source,omitempty"`
}

// Date layouts seen across bank, OCR, and invoice collaborators.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"02/01/2006",
	"02-01-2006",
}

// Normalizer converts raw collaborator records into canonical model records.
type Normalizer struct {
	defaultCurrency string
}

// New creates a Normalizer. Records without an explicit currency fall back
// to defaultCurrency.
func New(defaultCurrency string) *Normalizer {
	if defaultCurrency == "" {
		defaultCurrency = "EUR"
	}
	return &Normalizer{defaultCurrency: defaultCurrency}
}

// Transaction canonicalizes a raw bank record. Debits are negative
// regardless of the bank's sign convention.
func (n *Normalizer) Transaction(raw RawRecord) (*model.Transaction, error) {
	amount, err := n.amountMinor(raw)
	if err != nil {
		return nil, err
	}
	date, err := n.date(raw)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(raw.Direction) {
	case "debit":
		if amount > 0 {
			amount = -amount
		}
	case "credit":
		if amount < 0 {
			amount = -amount
		}
	}

	currency := raw.Currency
	if currency == "" {
		currency = n.defaultCurrency
	}

	txn := &model.Transaction{
		ID:          raw.ID,
		TenantID:    raw.TenantID,
		Amount:      amount,
		Currency:    currency,
		Date:        date,
		Description: CleanText(raw.Description),
		Counterpart: CleanText(raw.Counterpart),
		Status:      model.StatusUnmatched,
	}
	txn.Hash = txn.GenerateHash()
	return txn, nil
}

// Expense canonicalizes a raw expense record. Amounts are stored as positive
// magnitudes; an expense is an outlay by definition.
func (n *Normalizer) Expense(raw RawRecord) (*model.Expense, error) {
	amount, err := n.amountMinor(raw)
	if err != nil {
		return nil, err
	}
	date, err := n.date(raw)
	if err != nil {
		return nil, err
	}
	if amount < 0 {
		amount = -amount
	}

	source := model.ExpenseSource(raw.Source)
	if source == "" {
		source = model.ExpenseSourceManual
	}

	return &model.Expense{
		ID:          raw.ID,
		TenantID:    raw.TenantID,
		Amount:      amount,
		Date:        date,
		Description: CleanText(raw.Description),
		Provider:    CleanText(raw.Provider),
		InvoiceID:   raw.InvoiceID,
		Source:      source,
		Status:      model.StatusUnmatched,
	}, nil
}

// Invoice canonicalizes a raw tax-document record.
func (n *Normalizer) Invoice(raw RawRecord) (*model.Invoice, error) {
	amount, err := n.amountMinor(raw)
	if err != nil {
		return nil, err
	}
	date, err := n.date(raw)
	if err != nil {
		return nil, err
	}
	if amount < 0 {
		amount = -amount
	}

	return &model.Invoice{
		ID:           raw.ID,
		TenantID:     raw.TenantID,
		Total:        amount,
		EmissionDate: date,
		Issuer:       CleanText(raw.Provider),
		Description:  CleanText(raw.Description),
		Status:       model.StatusUnmatched,
	}, nil
}

// amountMinor parses the decimal amount string and shifts it into minor
// units. Decimal arithmetic avoids the float drift that plagues naive
// cents conversion.
func (n *Normalizer) amountMinor(raw RawRecord) (int64, error) {
	text := strings.TrimSpace(raw.Amount)
	if text == "" {
		return 0, &common.NormalizationError{RecordID: raw.ID, Field: "amount", Reason: "missing"}
	}

	// Tolerate European decimal commas from OCR sources.
	if strings.Count(text, ",") == 1 && !strings.Contains(text, ".") {
		text = strings.Replace(text, ",", ".", 1)
	}
	text = strings.ReplaceAll(text, " ", "")

	dec, err := decimal.NewFromString(text)
	if err != nil {
		return 0, &common.NormalizationError{RecordID: raw.ID, Field: "amount", Reason: err.Error()}
	}
	if dec.IsZero() {
		return 0, &common.NormalizationError{RecordID: raw.ID, Field: "amount", Reason: "zero amount"}
	}

	minor := dec.Shift(2)
	if !minor.IsInteger() {
		// Sub-minor precision is rounded half up, matching bank statements.
		minor = minor.Round(0)
	}
	return minor.IntPart(), nil
}

// date parses the record date against the known collaborator layouts and
// truncates it to a calendar day.
func (n *Normalizer) date(raw RawRecord) (time.Time, error) {
	text := strings.TrimSpace(raw.Date)
	if text == "" {
		return time.Time{}, &common.NormalizationError{RecordID: raw.ID, Field: "date", Reason: "missing"}
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}

	return time.Time{}, &common.NormalizationError{RecordID: raw.ID, Field: "date", Reason: "unrecognized layout " + text}
}

// CleanText lower-cases a description and collapses runs of whitespace.
func CleanText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
