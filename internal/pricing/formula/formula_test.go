package formula

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bindings() Bindings {
	return Bindings{"weight": 5, "rate": 6500, "baseValue": 500, "makingCharges": 500}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want float64
	}{
		{"rate times weight plus making", "rate*weight+makingCharges", 33000},
		{"precedence", "2+3*4", 14},
		{"parentheses", "(2+3)*4", 20},
		{"left associative minus", "10-4-3", 3},
		{"left associative divide", "100/5/2", 10},
		{"unary minus", "-weight + 10", 5},
		{"double unary", "--3", 3},
		{"decimals", "rate*weight*1.03", 33475},
		{"exponent literal", "1e3 + 0.5", 1000.5},
		{"whitespace", "  rate *\tweight  ", 32500},
		{"nested", "((baseValue))", 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.expr, bindings())
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestEvaluate_Errors(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"empty", "   "},
		{"unknown identifier", "rate*price"},
		{"code injection", "process.exit(1)"},
		{"function call", "max(rate, 1)"},
		{"dangling operator", "rate*"},
		{"missing paren", "(rate*weight"},
		{"extra paren", "rate*weight)"},
		{"division by zero", "rate/0"},
		{"division by zero expression", "rate/(weight-5)"},
		{"illegal character", "rate^2"},
		{"string literal", "'a'"},
		{"bad number", "1.2.3"},
		{"adjacent operands", "rate weight"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Evaluate(tt.expr, bindings())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrEvaluation)
		})
	}
}

func TestEvaluate_UnboundWhitelistedIdentifier(t *testing.T) {
	_, err := Evaluate("rate*weight", Bindings{"rate": 1})
	assert.ErrorIs(t, err, ErrEvaluation)
}

func TestEvaluate_NonFinitePassesThrough(t *testing.T) {
	got, err := Evaluate("rate*1e308*10", bindings())
	require.NoError(t, err)
	assert.True(t, math.IsInf(got, 1))
}

func TestEvaluate_DepthLimit(t *testing.T) {
	expr := ""
	for i := 0; i < 200; i++ {
		expr += "("
	}
	expr += "1"
	for i := 0; i < 200; i++ {
		expr += ")"
	}
	_, err := Evaluate(expr, bindings())
	assert.ErrorIs(t, err, ErrEvaluation)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("rate*weight+makingCharges"))
	assert.NoError(t, Validate("rate/(weight-1)"))
	assert.Error(t, Validate("rate/0"))
	assert.Error(t, Validate("rate/(0)"))
	assert.Error(t, Validate("rate/(1-1)"))
	assert.Error(t, Validate("rate/-(2*0)"))
	assert.NoError(t, Validate("rate/(weight-weight+1)"))
	assert.NoError(t, Validate("(1-1)/rate"))
	assert.Error(t, Validate("rate*purity"))
	assert.Error(t, Validate(""))
}
