package tagquery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// deviceTags is a representative device tag set used across match cases.
var deviceTags = []string{"environment=production", "location=warehouse-seattle", "hardware=rpi4"}

func TestEvaluate_TagQueryCombinations(t *testing.T) {
	cases := []struct {
		query string
		want  bool
	}{
		{"environment=production", true},
		{"location=warehouse-*", true},
		{"NOT environment=dev", true},
		{"(hardware=rpi4 OR hardware=rpi5) AND NOT environment=dev AND location=warehouse-*", true},
		{"environment=staging", false},
		{"hardware=rpi5", false},
	}

	for _, c := range cases {
		t.Run(c.query, func(t *testing.T) {
			got, err := Evaluate(c.query, deviceTags)
			require.NoError(t, err)
			assert.Equal(t, c.want, got)
		})
	}
}

func TestEvaluate_SimpleTagMatchesLegacyDevices(t *testing.T) {
	// A simple (unstructured) tag "production" should still match the
	// query "environment=production".
	got, err := Evaluate("environment=production", []string{"production"})
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEvaluate_InvalidStoredTagsAreSkipped(t *testing.T) {
	got, err := Evaluate("environment=production", []string{"=bad=tag=", "environment=production"})
	require.NoError(t, err)
	assert.True(t, got)
}

func TestParse_InvalidQueries(t *testing.T) {
	cases := []string{
		"",
		"environment=",
		"=production",
		"environment",
		"AND environment=production",
		"environment=production AND",
		"NOT",
		"(environment=production",
		"environment=production)",
		"environment==production",
		"environment=production!",
	}

	for _, q := range cases {
		t.Run(q, func(t *testing.T) {
			_, err := Parse(q)
			require.Error(t, err)
			var iq *InvalidQueryError
			require.ErrorAs(t, err, &iq)
		})
	}
}

func TestParse_OperatorPrecedenceAndAssociativity(t *testing.T) {
	// AND binds tighter than OR: "a=1 OR b=2 AND c=3" == "a=1 OR (b=2 AND c=3)"
	node, err := Parse("a=1 OR b=2 AND c=3")
	require.NoError(t, err)
	or, ok := node.(*OrNode)
	require.True(t, ok)
	_, leftIsMatch := or.L.(*MatchNode)
	assert.True(t, leftIsMatch)
	_, rightIsAnd := or.R.(*AndNode)
	assert.True(t, rightIsAnd)

	// NOT is right-associative prefix: "NOT NOT a=1" negates twice.
	node, err = Parse("NOT NOT a=1")
	require.NoError(t, err)
	outer, ok := node.(*NotNode)
	require.True(t, ok)
	_, ok = outer.X.(*NotNode)
	assert.True(t, ok)
}

func TestParse_CaseInsensitiveKeywords(t *testing.T) {
	for _, kw := range []string{"and", "AND", "And", "aNd"} {
		q := "a=1 " + kw + " b=2"
		node, err := Parse(q)
		require.NoError(t, err, q)
		_, ok := node.(*AndNode)
		assert.True(t, ok, q)
	}
}

func TestRoundTrip_ParsePrintParse(t *testing.T) {
	queries := []string{
		"environment=production",
		"location=warehouse-*",
		"NOT environment=dev",
		"(hardware=rpi4 OR hardware=rpi5) AND NOT environment=dev AND location=warehouse-*",
		"a=1 AND b=2 OR c=3",
	}

	for _, q := range queries {
		t.Run(q, func(t *testing.T) {
			first, err := Compile(q)
			require.NoError(t, err)

			printed := first.String()
			second, err := Compile(printed)
			require.NoError(t, err)

			assert.Equal(t, first.String(), second.String())
			assert.Equal(t, first.Root(), second.Root())
		})
	}
}

func TestWildcard_DoubleStarCollapses(t *testing.T) {
	got, err := Evaluate("location=warehouse-**", []string{"location=warehouse-5"})
	require.NoError(t, err)
	assert.True(t, got)
}
