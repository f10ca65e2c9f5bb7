package model

import "time"

// ExpenseSource indicates how an expense entered the system.
type ExpenseSource string

const (
	// ExpenseSourceManual indicates a hand-entered expense.
	ExpenseSourceManual ExpenseSource = "manual"
	// ExpenseSourceOCR indicates an expense captured from a scanned document.
	ExpenseSourceOCR ExpenseSource = "ocr"
	// ExpenseSourceVoice indicates an expense captured from a voice note.
	ExpenseSourceVoice ExpenseSource = "voice"
	// ExpenseSourceTicket indicates an expense imported from a ticket system.
	ExpenseSourceTicket ExpenseSource = "ticket"
)

// Expense represents a recorded outlay that may correspond to a bank
// transaction. Amounts are positive minor currency units.
type Expense struct {
	Date        time.Time
	CreatedAt   time.Time
	ID          string
	TenantID    string
	Description string
	Provider    string // Payer/merchant reference used for duplicate detection
	InvoiceID   string // Optional linked tax invoice
	Source      ExpenseSource
	Status      RecordStatus
	Amount      int64 // Minor units, always positive
}

// Invoice represents a tax document record supplied by the invoice-ingestion
// collaborator.
type Invoice struct {
	EmissionDate time.Time
	ID           string
	TenantID     string
	Issuer       string
	Description  string
	Status       RecordStatus
	Total        int64 // Minor units
}

// CounterpartKind distinguishes the record types a transaction can match.
type CounterpartKind string

const (
	// KindExpense marks a counterpart backed by an Expense record.
	KindExpense CounterpartKind = "expense"
	// KindInvoice marks a counterpart backed by an Invoice record.
	KindInvoice CounterpartKind = "invoice"
)

// Counterpart is the matching-side view of an expense or invoice: just
// enough to generate candidates and score them.
type Counterpart struct {
	Date        time.Time
	ID          string
	TenantID    string
	Description string
	Provider    string
	Kind        CounterpartKind
	Status      RecordStatus
	Amount      int64 // Minor units, positive
}

// CounterpartFromExpense adapts an expense for the matching pipeline.
func CounterpartFromExpense(e Expense) Counterpart {
	return Counterpart{
		Date:        e.Date,
		ID:          e.ID,
		TenantID:    e.TenantID,
		Description: e.Description,
		Provider:    e.Provider,
		Kind:        KindExpense,
		Status:      e.Status,
		Amount:      e.Amount,
	}
}

// CounterpartFromInvoice adapts an invoice for the matching pipeline.
func CounterpartFromInvoice(inv Invoice) Counterpart {
	return Counterpart{
		Date:        inv.EmissionDate,
		ID:          inv.ID,
		TenantID:    inv.TenantID,
		Description: inv.Description,
		Provider:    inv.Issuer,
		Kind:        KindInvoice,
		Status:      inv.Status,
		Amount:      inv.Total,
	}
}
