package expr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvaluatePredicate_FewerThanThreeTokensIsUnconditional(t *testing.T) {
	require.True(t, EvaluatePredicate(testInstance(), ""))
	require.True(t, EvaluatePredicate(testInstance(), "state.approved"))
}

func TestEvaluatePredicate_Equality(t *testing.T) {
	inst := testInstance()
	require.True(t, EvaluatePredicate(inst, "state.approved == true"))
	require.True(t, EvaluatePredicate(inst, `input.order.currency == "USD"`))
	require.True(t, EvaluatePredicate(inst, `input.order.currency != "EUR"`))
}

func TestEvaluatePredicate_NumericComparison(t *testing.T) {
	inst := testInstance()
	require.True(t, EvaluatePredicate(inst, "state.attempts >= 3"))
	require.True(t, EvaluatePredicate(inst, "input.order.amount > 10"))
	require.False(t, EvaluatePredicate(inst, "input.order.amount < 10"))
}

func TestEvaluatePredicate_ComparisonFalseOnNonNumeric(t *testing.T) {
	inst := testInstance()
	require.False(t, EvaluatePredicate(inst, "input.order.currency > 1"))
}

func TestEvaluatePredicate_StringOperators(t *testing.T) {
	inst := testInstance()
	require.True(t, EvaluatePredicate(inst, `input.order.currency contains "SD"`))
	require.True(t, EvaluatePredicate(inst, `input.order.currency startsWith "US"`))
	require.True(t, EvaluatePredicate(inst, `input.order.currency endsWith "SD"`))
}

func TestEvaluatePredicate_UnknownOperatorIsFalse(t *testing.T) {
	require.False(t, EvaluatePredicate(testInstance(), "a ?? b"))
}
