package normalize

import (
	"errors"
	"testing"
	"time"

	"github.com/quillbooks/reconcile/internal/common"
	"github.com/quillbooks/reconcile/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTransaction(t *testing.T) {
	n := New("EUR")

	tests := []struct {
		name       string
		raw        RawRecord
		wantAmount int64
		wantDate   time.Time
		wantDesc   string
		wantErr    bool
		errField   string
	}{
		{
			name: "debit with positive sign convention",
			raw: RawRecord{
				Kind: KindTransaction, ID: "t1", TenantID: "acme",
				Amount: "2500.00", Direction: "debit",
				Date: "2025-03-10", Description: "  ACME   Office SUPPLIES ",
			},
			wantAmount: -250000,
			wantDate:   time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
			wantDesc:   "acme office supplies",
		},
		{
			name: "already negative debit stays negative",
			raw: RawRecord{
				Kind: KindTransaction, ID: "t2", TenantID: "acme",
				Amount: "-120.50", Direction: "debit",
				Date: "2025-03-10", Description: "coffee",
			},
			wantAmount: -12050,
			wantDate:   time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
			wantDesc:   "coffee",
		},
		{
			name: "european decimal comma",
			raw: RawRecord{
				Kind: KindTransaction, ID: "t3", TenantID: "acme",
				Amount: "1234,56", Direction: "credit",
				Date: "10/03/2025", Description: "refund",
			},
			wantAmount: 123456,
			wantDate:   time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
			wantDesc:   "refund",
		},
		{
			name: "timestamp truncated to calendar day",
			raw: RawRecord{
				Kind: KindTransaction, ID: "t4", TenantID: "acme",
				Amount: "-10.00",
				Date:   "2025-03-10T17:45:00Z", Description: "lunch",
			},
			wantAmount: -1000,
			wantDate:   time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
			wantDesc:   "lunch",
		},
		{
			name: "missing amount rejected",
			raw: RawRecord{
				Kind: KindTransaction, ID: "t5", TenantID: "acme",
				Date: "2025-03-10", Description: "mystery",
			},
			wantErr:  true,
			errField: "amount",
		},
		{
			name: "missing date rejected",
			raw: RawRecord{
				Kind: KindTransaction, ID: "t6", TenantID: "acme",
				Amount: "10.00", Description: "mystery",
			},
			wantErr:  true,
			errField: "date",
		},
		{
			name: "garbage date rejected",
			raw: RawRecord{
				Kind: KindTransaction, ID: "t7", TenantID: "acme",
				Amount: "10.00", Date: "soon", Description: "mystery",
			},
			wantErr:  true,
			errField: "date",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn, err := n.Transaction(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				var nerr *common.NormalizationError
				require.True(t, errors.As(err, &nerr))
				assert.Equal(t, tt.errField, nerr.Field)
				assert.Equal(t, tt.raw.ID, nerr.RecordID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAmount, txn.Amount)
			assert.Equal(t, tt.wantDate, txn.Date)
			assert.Equal(t, tt.wantDesc, txn.Description)
			assert.Equal(t, model.StatusUnmatched, txn.Status)
			assert.NotEmpty(t, txn.Hash)
		})
	}
}

func TestNormalizeExpenseAlwaysPositive(t *testing.T) {
	n := New("EUR")

	exp, err := n.Expense(RawRecord{
		Kind: KindExpense, ID: "e1", TenantID: "acme",
		Amount: "-42.00", Date: "2025-03-01",
		Description: "Taxi To Airport", Provider: "City Cabs",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4200), exp.Amount)
	assert.Equal(t, "taxi to airport", exp.Description)
	assert.Equal(t, "city cabs", exp.Provider)
	assert.Equal(t, model.ExpenseSourceManual, exp.Source)
}

func TestNormalizeInvoice(t *testing.T) {
	n := New("EUR")

	inv, err := n.Invoice(RawRecord{
		Kind: KindInvoice, ID: "i1", TenantID: "acme",
		Amount: "1210.00", Date: "2025-02-28",
		Provider: "Hosting GmbH", Description: "February hosting",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(121000), inv.Total)
	assert.Equal(t, "hosting gmbh", inv.Issuer)
	assert.Equal(t, model.StatusUnmatched, inv.Status)
}

func TestNormalizeRejectsZeroAmount(t *testing.T) {
	n := New("EUR")

	_, err := n.Expense(RawRecord{
		Kind: KindExpense, ID: "e2", TenantID: "acme",
		Amount: "0.00", Date: "2025-03-01", Description: "nothing",
	})
	require.Error(t, err)

	var nerr *common.NormalizationError
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, "amount", nerr.Field)
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "acme gmbh berlin", CleanText("  ACME\t GmbH \n Berlin "))
	assert.Equal(t, "", CleanText("   "))
}
