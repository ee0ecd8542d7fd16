package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/reviewpilot/reviewpilot-engine/pkg/database"
)

// TenantContextFunc acquires a connection scoped to one organization.
// Returns the scoped context, a cleanup function (MUST be called), and any error.
type TenantContextFunc func(ctx context.Context, organizationID uuid.UUID) (context.Context, func(), error)

// UnscopedContextFunc acquires a connection without organization context, for work
// that spans tenants such as background jobs and webhooks.
type UnscopedContextFunc func(ctx context.Context) (context.Context, func(), error)

// NewTenantContextFunc creates a TenantContextFunc that uses the given database.
func NewTenantContextFunc(db *database.DB) TenantContextFunc {
	return func(ctx context.Context, organizationID uuid.UUID) (context.Context, func(), error) {
		scope, err := db.WithTenant(ctx, organizationID)
		if err != nil {
			return nil, nil, err
		}
		return database.SetTenantScope(ctx, scope), func() { scope.Close() }, nil
	}
}

// NewUnscopedContextFunc creates an UnscopedContextFunc that uses the given database.
func NewUnscopedContextFunc(db *database.DB) UnscopedContextFunc {
	return func(ctx context.Context) (context.Context, func(), error) {
		scope, err := db.WithoutTenant(ctx)
		if err != nil {
			return nil, nil, err
		}
		return database.SetTenantScope(ctx, scope), func() { scope.Close() }, nil
	}
}

// inTenant runs fn with a context scoped to organizationID.
func inTenant(ctx context.Context, getCtx TenantContextFunc, organizationID uuid.UUID, fn func(ctx context.Context) error) error {
	tenantCtx, cleanup, err := getCtx(ctx, organizationID)
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(tenantCtx)
}

// unscoped runs fn with an unscoped context.
func unscoped(ctx context.Context, getCtx UnscopedContextFunc, fn func(ctx context.Context) error) error {
	unscopedCtx, cleanup, err := getCtx(ctx)
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(unscopedCtx)
}
