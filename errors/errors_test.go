package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKindsFormatTheirArgs(t *testing.T) {
	err := ErrInvalidQueryShape.New("union over zero subqueries")
	assert.Contains(t, err.Error(), "invalid query shape")
	assert.Contains(t, err.Error(), "union over zero subqueries")

	err = ErrTranspileUnsupported.New("sql", "NEST")
	assert.Contains(t, err.Error(), "sql")
	assert.Contains(t, err.Error(), "NEST")
}

func TestErrorKindsAreDistinguishable(t *testing.T) {
	err := ErrMalformedExpression.New("age >>", "bad operator")
	assert.True(t, ErrMalformedExpression.Is(err))
	assert.False(t, ErrUnknownOperator.Is(err))
}
