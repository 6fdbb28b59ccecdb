package tagquery

import "github.com/signalbeam/signalbeam/internal/domain"

// Query is a parsed, reusable tag query. Construct one with Compile and
// evaluate it against as many device tag sets as needed.
type Query struct {
	root Node
	text string
}

// Compile parses expr and wraps parse failures as a
// domain.KindValidationFailed error.
func Compile(expr string) (*Query, error) {
	node, err := Parse(expr)
	if err != nil {
		return nil, domain.NewValidationError("tag query: %v", err)
	}
	return &Query{root: node, text: expr}, nil
}

// Matches evaluates the query against a device's normalized tag set.
func (q *Query) Matches(tags []string) bool {
	return q.root.Evaluate(domain.NormalizeTags(tags))
}

// String renders the query back to canonical syntax.
func (q *Query) String() string { return q.root.String() }

// Root exposes the parsed AST for callers that want to inspect or
// re-serialize it directly (e.g. round-trip tests).
func (q *Query) Root() Node { return q.root }

// Evaluate is a convenience one-shot helper: parse expr and evaluate it
// against tags in a single call.
func Evaluate(expr string, tags []string) (bool, error) {
	q, err := Compile(expr)
	if err != nil {
		return false, err
	}
	return q.Matches(tags), nil
}
