package gate

import (
	"fmt"

	"github.com/hashicorp/go-bexpr"

	"wayfarer/internal/auth"
)

// ExprMatcher evaluates a go-bexpr expression against identity fields:
// id, email, display_name, provider, email_verified.
//
//	email matches "@ops.example.com$" and email_verified == true
type ExprMatcher struct {
	expr      string
	evaluator *bexpr.Evaluator
}

// NewExprMatcher compiles expr once; invalid syntax is rejected here rather
// than at match time.
func NewExprMatcher(expr string) (*ExprMatcher, error) {
	evaluator, err := bexpr.CreateEvaluator(expr)
	if err != nil {
		return nil, fmt.Errorf("gate: invalid expression %q: %w", expr, err)
	}
	return &ExprMatcher{expr: expr, evaluator: evaluator}, nil
}

// Match returns false when evaluation fails.
func (m *ExprMatcher) Match(identity auth.Identity) bool {
	ok, err := m.evaluator.Evaluate(identityFields(identity))
	if err != nil {
		return false
	}
	return ok
}

func (m *ExprMatcher) String() string { return "expr:" + m.expr }

func identityFields(identity auth.Identity) map[string]any {
	return map[string]any{
		"id":             identity.ID,
		"email":          identity.Email,
		"display_name":   identity.DisplayName,
		"provider":       identity.Provider,
		"email_verified": identity.EmailVerified,
	}
}
