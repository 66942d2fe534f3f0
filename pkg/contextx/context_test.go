package contextx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupAuthPrincipalID(t *testing.T) {
	t.Run("missing principal", func(t *testing.T) {
		id, ok := LookupAuthPrincipalID(context.Background())
		assert.False(t, ok)
		assert.Empty(t, id)
	})

	t.Run("empty principal is treated as missing", func(t *testing.T) {
		_, ok := LookupAuthPrincipalID(WithAuthPrincipalID(context.Background(), ""))
		assert.False(t, ok)
	})

	t.Run("present principal", func(t *testing.T) {
		id, ok := LookupAuthPrincipalID(WithAuthPrincipalID(context.Background(), "openidm-admin"))
		assert.True(t, ok)
		assert.Equal(t, "openidm-admin", id)
	})

	t.Run("nil context", func(t *testing.T) {
		_, ok := LookupAuthPrincipalID(nil)
		assert.False(t, ok)
	})
}

func TestTransactionIDHasNoPlaceholder(t *testing.T) {
	_, ok := LookupTransactionID(context.Background())
	assert.False(t, ok)

	ctx := WithTransactionID(context.Background(), "tx-1")
	id, ok := LookupTransactionID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "tx-1", id)

	assert.Equal(t, "untriaged", GetTraceID(context.Background()))
}

func TestAuthRoles(t *testing.T) {
	assert.Nil(t, GetAuthRoles(context.Background()))
	ctx := WithAuthRoles(context.Background(), []string{"admin", "auditor"})
	assert.Equal(t, []string{"admin", "auditor"}, GetAuthRoles(ctx))
}
