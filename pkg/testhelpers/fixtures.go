package testhelpers

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/reviewpilot/reviewpilot-engine/pkg/database"
)

// Tenant is an organization with one owner and one business, created for a test.
type Tenant struct {
	OrganizationID uuid.UUID
	OwnerID        uuid.UUID
	BusinessID     uuid.UUID
}

// CreateTenant inserts a fresh organization, owner and business and removes them when the test ends.
func CreateTenant(t *testing.T, engineDB *EngineDB) *Tenant {
	t.Helper()
	ctx := context.Background()

	tenant := &Tenant{
		OrganizationID: uuid.New(),
		OwnerID:        uuid.New(),
		BusinessID:     uuid.New(),
	}

	err := engineDB.DB.RunWithoutTenant(ctx, func(ctx context.Context) error {
		scope, _ := database.GetTenantScope(ctx)
		if _, err := scope.Conn.Exec(ctx, `INSERT INTO organizations (id, name) VALUES ($1, 'Test Org')`,
			tenant.OrganizationID); err != nil {
			return err
		}
		if _, err := scope.Conn.Exec(ctx, `
			INSERT INTO users (id, organization_id, subject, email, role)
			VALUES ($1, $2, $3, 'owner@example.com', 'owner')`,
			tenant.OwnerID, tenant.OrganizationID, "test|"+tenant.OwnerID.String()); err != nil {
			return err
		}
		_, err := scope.Conn.Exec(ctx, `INSERT INTO businesses (id, organization_id, name) VALUES ($1, $2, 'Test Bakery')`,
			tenant.BusinessID, tenant.OrganizationID)
		return err
	})
	if err != nil {
		t.Fatalf("failed to create test tenant: %v", err)
	}

	t.Cleanup(func() {
		_ = engineDB.DB.RunWithoutTenant(context.Background(), func(ctx context.Context) error {
			scope, _ := database.GetTenantScope(ctx)
			_, _ = scope.Conn.Exec(ctx, `DELETE FROM users WHERE organization_id = $1`, tenant.OrganizationID)
			_, err := scope.Conn.Exec(ctx, `DELETE FROM organizations WHERE id = $1`, tenant.OrganizationID)
			return err
		})
	})

	return tenant
}

// TenantContext returns a context scoped to the tenant's organization and a cleanup func.
func TenantContext(t *testing.T, engineDB *EngineDB, organizationID uuid.UUID) (context.Context, func()) {
	t.Helper()
	ctx := context.Background()
	scope, err := engineDB.DB.WithTenant(ctx, organizationID)
	if err != nil {
		t.Fatalf("failed to create tenant scope: %v", err)
	}
	return database.SetTenantScope(ctx, scope), scope.Close
}

// UnscopedContext returns a context with a connection that sees every organization.
func UnscopedContext(t *testing.T, engineDB *EngineDB) (context.Context, func()) {
	t.Helper()
	ctx := context.Background()
	scope, err := engineDB.DB.WithoutTenant(ctx)
	if err != nil {
		t.Fatalf("failed to create scope: %v", err)
	}
	return database.SetTenantScope(ctx, scope), scope.Close
}
