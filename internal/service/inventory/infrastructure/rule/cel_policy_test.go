package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockhold/internal/service/inventory/domain"
)

func TestCELAdmissionPolicy_EmptyAdmitsEverything(t *testing.T) {
	p, err := NewCELAdmissionPolicy("")
	require.NoError(t, err)

	ok, err := p.Admit("O1", []domain.LineItem{{ProductID: "P1", Quantity: 1000}})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCELAdmissionPolicy_Evaluate(t *testing.T) {
	items := []domain.LineItem{
		{ProductID: "P1", Quantity: 2},
		{ProductID: "P2", Quantity: 3},
	}

	cases := []struct {
		expr string
		want bool
	}{
		{"total_quantity <= 5", true},
		{"total_quantity < 5", false},
		{"line_count == 2", true},
		{"items.all(i, i.quantity <= 2)", false},
		{"items.exists(i, i.product_id == 'P2' && i.quantity == 3)", true},
		{"order_id.startsWith('VIP-')", false},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			p, err := NewCELAdmissionPolicy(tc.expr)
			require.NoError(t, err)
			assert.Equal(t, tc.expr, p.Expression())

			ok, err := p.Admit("O1", items)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
		})
	}
}

func TestCELAdmissionPolicy_CompileError(t *testing.T) {
	_, err := NewCELAdmissionPolicy("total_quantity <=")
	assert.Error(t, err)

	_, err = NewCELAdmissionPolicy("unknown_var > 1")
	assert.Error(t, err)
}

func TestCELAdmissionPolicy_NonBoolResult(t *testing.T) {
	p, err := NewCELAdmissionPolicy("total_quantity + 1")
	require.NoError(t, err)

	_, err = p.Admit("O1", []domain.LineItem{{ProductID: "P1", Quantity: 1}})
	assert.Error(t, err)
}
