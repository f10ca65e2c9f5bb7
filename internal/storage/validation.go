package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/quillbooks/reconcile/internal/model"
)

// Validation errors.
var (
	ErrNilContext      = errors.New("context cannot be nil")
	ErrEmptyString     = errors.New("value cannot be empty")
	ErrInvalidRecord   = errors.New("invalid record")
	ErrInvalidDecision = errors.New("invalid decision")
)

func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

func validateString(value, name string) error {
	if value == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, name)
	}
	return nil
}

func validateTransactions(transactions []model.Transaction) error {
	for i := range transactions {
		txn := &transactions[i]
		if txn.ID == "" {
			return fmt.Errorf("%w: transaction %d has no id", ErrInvalidRecord, i)
		}
		if txn.TenantID == "" {
			return fmt.Errorf("%w: transaction %s has no tenant", ErrInvalidRecord, txn.ID)
		}
		if txn.Date.IsZero() {
			return fmt.Errorf("%w: transaction %s has no date", ErrInvalidRecord, txn.ID)
		}
	}
	return nil
}

func validateExpenses(expenses []model.Expense) error {
	for i := range expenses {
		exp := &expenses[i]
		if exp.ID == "" {
			return fmt.Errorf("%w: expense %d has no id", ErrInvalidRecord, i)
		}
		if exp.TenantID == "" {
			return fmt.Errorf("%w: expense %s has no tenant", ErrInvalidRecord, exp.ID)
		}
		if exp.Amount < 0 {
			return fmt.Errorf("%w: expense %s has negative amount", ErrInvalidRecord, exp.ID)
		}
	}
	return nil
}

func validateSuggestion(suggestion *model.Suggestion) error {
	if suggestion == nil {
		return fmt.Errorf("%w: nil suggestion", ErrInvalidRecord)
	}
	if suggestion.ID == "" {
		return fmt.Errorf("%w: suggestion has no id", ErrInvalidRecord)
	}
	if suggestion.Candidate.TransactionID == "" {
		return fmt.Errorf("%w: suggestion %s references no transaction", ErrInvalidRecord, suggestion.ID)
	}
	if len(suggestion.Candidate.Counterparts) == 0 {
		return fmt.Errorf("%w: suggestion %s has no counterparts", ErrInvalidRecord, suggestion.ID)
	}
	return nil
}

func validateDecision(decision *model.MatchDecision) error {
	if decision == nil {
		return fmt.Errorf("%w: nil decision", ErrInvalidDecision)
	}
	if decision.GroupID == "" {
		return fmt.Errorf("%w: decision has no group id", ErrInvalidDecision)
	}
	if decision.TenantID == "" {
		return fmt.Errorf("%w: decision %s has no tenant", ErrInvalidDecision, decision.GroupID)
	}
	if len(decision.Allocations) == 0 {
		return fmt.Errorf("%w: decision %s has no allocations", ErrInvalidDecision, decision.GroupID)
	}
	return nil
}
