package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/quillbooks/reconcile/internal/common"
	"github.com/quillbooks/reconcile/internal/model"
	"github.com/quillbooks/reconcile/internal/service"
)

// mockStorage is an in-memory Storage implementation for engine tests.
type mockStorage struct {
	mu           sync.Mutex
	transactions map[string]*model.Transaction
	expenses     map[string]*model.Expense
	invoices     map[string]*model.Invoice
	suggestions  map[string]*model.Suggestion
	decisions    map[string]*model.MatchDecision
	audit        []model.AuditEntry
	rejections   []model.Rejection
	reports      []service.JobReport

	failSaveSuggestion bool
}

func newMockStorage() *mockStorage {
	return &mockStorage{
		transactions: make(map[string]*model.Transaction),
		expenses:     make(map[string]*model.Expense),
		invoices:     make(map[string]*model.Invoice),
		suggestions:  make(map[string]*model.Suggestion),
		decisions:    make(map[string]*model.MatchDecision),
	}
}

func (m *mockStorage) SaveTransactions(_ context.Context, transactions []model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range transactions {
		txn := transactions[i]
		if txn.Status == "" {
			txn.Status = model.StatusUnmatched
		}
		m.transactions[txn.ID] = &txn
	}
	return nil
}

func (m *mockStorage) SaveExpenses(_ context.Context, expenses []model.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range expenses {
		exp := expenses[i]
		if exp.Status == "" {
			exp.Status = model.StatusUnmatched
		}
		m.expenses[exp.ID] = &exp
	}
	return nil
}

func (m *mockStorage) SaveInvoices(_ context.Context, invoices []model.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range invoices {
		inv := invoices[i]
		if inv.Status == "" {
			inv.Status = model.StatusUnmatched
		}
		m.invoices[inv.ID] = &inv
	}
	return nil
}

func (m *mockStorage) GetTransactionByID(_ context.Context, id string) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, ok := m.transactions[id]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	copied := *txn
	return &copied, nil
}

func (m *mockStorage) GetExpenseByID(_ context.Context, id string) (*model.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.expenses[id]
	if !ok {
		return nil, fmt.Errorf("expense %s: %w", id, common.ErrNotFound)
	}
	copied := *exp
	return &copied, nil
}

func (m *mockStorage) GetInvoiceByID(_ context.Context, id string) (*model.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return nil, fmt.Errorf("invoice %s: %w", id, common.ErrNotFound)
	}
	copied := *inv
	return &copied, nil
}

func (m *mockStorage) GetUnmatchedTransactions(_ context.Context, tenantID string, window service.DateRange) ([]model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Transaction
	for _, txn := range m.transactions {
		if txn.TenantID != tenantID || txn.Status != model.StatusUnmatched {
			continue
		}
		if !window.Contains(txn.Date) {
			continue
		}
		out = append(out, *txn)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *mockStorage) GetMatchableCounterparts(_ context.Context, tenantID string) ([]model.Counterpart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Counterpart
	for _, exp := range m.expenses {
		if exp.TenantID == tenantID && exp.Status.Matchable() {
			out = append(out, model.CounterpartFromExpense(*exp))
		}
	}
	for _, inv := range m.invoices {
		if inv.TenantID == tenantID && inv.Status.Matchable() {
			out = append(out, model.CounterpartFromInvoice(*inv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockStorage) GetRecentExpenses(_ context.Context, tenantID string, since time.Time) ([]model.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Expense
	for _, exp := range m.expenses {
		if exp.TenantID == tenantID && exp.Status.Matchable() && !exp.Date.Before(since) {
			out = append(out, *exp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockStorage) UpdateTransactionStatus(_ context.Context, id string, status model.RecordStatus, allocatedMinor int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, ok := m.transactions[id]
	if !ok {
		return fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	txn.Status = status
	txn.AllocatedMinor = allocatedMinor
	return nil
}

func (m *mockStorage) UpdateCounterpartStatus(_ context.Context, kind model.CounterpartKind, id string, status model.RecordStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch kind {
	case model.KindExpense:
		exp, ok := m.expenses[id]
		if !ok {
			return fmt.Errorf("expense %s: %w", id, common.ErrNotFound)
		}
		exp.Status = status
	case model.KindInvoice:
		inv, ok := m.invoices[id]
		if !ok {
			return fmt.Errorf("invoice %s: %w", id, common.ErrNotFound)
		}
		inv.Status = status
	default:
		return fmt.Errorf("unknown counterpart kind %q", kind)
	}
	return nil
}

func (m *mockStorage) SaveSuggestion(_ context.Context, suggestion *model.Suggestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSaveSuggestion {
		return fmt.Errorf("suggestion store unavailable")
	}
	copied := *suggestion
	m.suggestions[suggestion.ID] = &copied
	return nil
}

func (m *mockStorage) GetSuggestionByID(_ context.Context, id string) (*model.Suggestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	suggestion, ok := m.suggestions[id]
	if !ok {
		return nil, fmt.Errorf("suggestion %s: %w", id, common.ErrNotFound)
	}
	copied := *suggestion
	return &copied, nil
}

func (m *mockStorage) GetPendingSuggestions(_ context.Context, tenantID string, minConfidence float64) ([]model.Suggestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Suggestion
	for _, suggestion := range m.suggestions {
		if suggestion.TenantID != tenantID || suggestion.Status != model.SuggestionPending {
			continue
		}
		if suggestion.Candidate.Confidence < minConfidence {
			continue
		}
		out = append(out, *suggestion)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Candidate.Confidence != out[j].Candidate.Confidence {
			return out[i].Candidate.Confidence > out[j].Candidate.Confidence
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *mockStorage) ResolveSuggestion(_ context.Context, id string, status model.SuggestionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	suggestion, ok := m.suggestions[id]
	if !ok {
		return fmt.Errorf("suggestion %s: %w", id, common.ErrNotFound)
	}
	now := time.Now().UTC()
	suggestion.Status = status
	suggestion.ResolvedAt = &now
	return nil
}

func (m *mockStorage) SaveRejection(_ context.Context, rejection *model.Rejection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejections = append(m.rejections, *rejection)
	return nil
}

func (m *mockStorage) SaveDecision(_ context.Context, decision *model.MatchDecision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *decision
	copied.Allocations = append([]model.Allocation(nil), decision.Allocations...)
	m.decisions[decision.GroupID] = &copied
	return nil
}

func (m *mockStorage) GetDecisionByGroupID(_ context.Context, groupID string) (*model.MatchDecision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	decision, ok := m.decisions[groupID]
	if !ok {
		return nil, fmt.Errorf("decision %s: %w", groupID, common.ErrNotFound)
	}
	copied := *decision
	return &copied, nil
}

func (m *mockStorage) MarkDecisionReversed(_ context.Context, groupID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	decision, ok := m.decisions[groupID]
	if !ok || decision.Reversed {
		return fmt.Errorf("decision %s: %w", groupID, common.ErrNotFound)
	}
	decision.Reversed = true
	return nil
}

func (m *mockStorage) HasActiveDecisionFor(_ context.Context, recordID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, decision := range m.decisions {
		if decision.Reversed || decision.ReversalOf != "" {
			continue
		}
		for _, alloc := range decision.Allocations {
			if alloc.TransactionID == recordID || alloc.CounterpartID == recordID {
				return true, nil
			}
		}
	}
	return false, nil
}

func (m *mockStorage) SaveAuditEntry(_ context.Context, entry *model.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, *entry)
	return nil
}

func (m *mockStorage) GetAuditTrail(_ context.Context, groupID string) ([]model.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.AuditEntry
	for _, entry := range m.audit {
		if entry.GroupID == groupID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (m *mockStorage) SaveJobReport(_ context.Context, report *service.JobReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, *report)
	return nil
}

func (m *mockStorage) GetTenantStats(_ context.Context, tenantID string) (*service.TenantStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &service.TenantStats{TenantID: tenantID}
	for _, txn := range m.transactions {
		if txn.TenantID != tenantID {
			continue
		}
		stats.Total++
		switch txn.Status {
		case model.StatusMatched, model.StatusSplit:
			stats.Matched++
		case model.StatusUnmatched:
			stats.Pending++
		}
	}
	var confidenceSum, autoSum, manualSum float64
	var active int
	for _, decision := range m.decisions {
		if decision.TenantID != tenantID || decision.Reversed || decision.ReversalOf != "" {
			continue
		}
		switch decision.Method {
		case model.MethodAuto:
			stats.AutoMatched++
			autoSum += decision.Confidence
		case model.MethodManual:
			stats.ManualMatched++
			manualSum += decision.Confidence
		}
		confidenceSum += decision.Confidence
		active++
	}
	if active > 0 {
		stats.AvgConfidence = confidenceSum / float64(active)
	}
	if stats.AutoMatched > 0 {
		stats.AvgConfidenceAuto = autoSum / float64(stats.AutoMatched)
	}
	if stats.ManualMatched > 0 {
		stats.AvgConfidenceManual = manualSum / float64(stats.ManualMatched)
	}
	return stats, nil
}

func (m *mockStorage) Migrate(_ context.Context) error { return nil }

// BeginTx returns the mock itself wrapped in a no-op transaction. Writes go
// straight through; the engine's pre-write staleness checks are what these
// tests exercise, transactional atomicity is covered by the storage tests.
func (m *mockStorage) BeginTx(_ context.Context) (service.Transaction, error) {
	return &mockTx{mockStorage: m}, nil
}

func (m *mockStorage) Close() error { return nil }

type mockTx struct {
	*mockStorage
}

func (t *mockTx) Commit() error   { return nil }
func (t *mockTx) Rollback() error { return nil }

func (t *mockTx) BeginTx(_ context.Context) (service.Transaction, error) {
	return nil, fmt.Errorf("cannot begin a transaction within a transaction")
}
