package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInTx_RequiresScope(t *testing.T) {
	err := InTx(context.Background(), func(ctx context.Context) error {
		t.Fatal("fn must not run without a connection")
		return nil
	})
	assert.Error(t, err)
}

func TestTenantScope_CloseWithoutConnection(t *testing.T) {
	assert.NotPanics(t, func() { (&TenantScope{}).Close() })
}
