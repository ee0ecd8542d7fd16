package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is what repositories run statements on: a pooled connection, or a transaction
// opened on one by InTx.
type Querier interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

var (
	_ Querier = (*pgxpool.Conn)(nil)
	_ Querier = (pgx.Tx)(nil)
)

// TenantScope wraps a pooled connection bound to one organization.
// The connection has app.current_organization_id set for RLS policy evaluation.
type TenantScope struct {
	Conn           Querier
	OrganizationID uuid.UUID

	// pooled is set on the scope that owns the connection; transaction scopes leave it nil.
	pooled *pgxpool.Conn
}

// Close resets tenant context and releases the connection to the pool.
// This MUST be called to prevent tenant context from leaking to the next request.
func (s *TenantScope) Close() {
	if s.pooled == nil {
		return
	}
	_, _ = s.pooled.Exec(context.Background(), "RESET app.current_organization_id")
	s.pooled.Release()
}

// InTx runs fn in a transaction on the scope already in ctx. Repositories called from fn
// see the transaction through ctx; the transaction commits only if fn returns nil.
func InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	scope, ok := GetTenantScope(ctx)
	if !ok || scope.Conn == nil {
		return errors.New("no database connection in context")
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	txScope := &TenantScope{Conn: tx, OrganizationID: scope.OrganizationID}
	if err := fn(SetTenantScope(ctx, txScope)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// WithTenant acquires a connection and sets the organization context for RLS.
// The returned TenantScope MUST be closed with defer scope.Close().
func (db *DB) WithTenant(ctx context.Context, organizationID uuid.UUID) (*TenantScope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	_, err = conn.Exec(ctx, "SELECT set_config('app.current_organization_id', $1, false)", organizationID.String())
	if err != nil {
		conn.Release()
		return nil, err
	}

	return &TenantScope{Conn: conn, OrganizationID: organizationID, pooled: conn}, nil
}

// WithoutTenant acquires a connection without organization context.
// Used by provisioning, webhooks and background jobs that span organizations.
// The returned TenantScope MUST be closed with defer scope.Close().
func (db *DB) WithoutTenant(ctx context.Context) (*TenantScope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &TenantScope{Conn: conn, pooled: conn}, nil
}

// RunInTenant runs fn with a tenant-scoped context for the organization.
// Background jobs use this to reuse request-path repositories.
func (db *DB) RunInTenant(ctx context.Context, organizationID uuid.UUID, fn func(ctx context.Context) error) error {
	scope, err := db.WithTenant(ctx, organizationID)
	if err != nil {
		return err
	}
	defer scope.Close()
	return fn(SetTenantScope(ctx, scope))
}

// RunWithoutTenant runs fn with an unscoped connection in context.
func (db *DB) RunWithoutTenant(ctx context.Context, fn func(ctx context.Context) error) error {
	scope, err := db.WithoutTenant(ctx)
	if err != nil {
		return err
	}
	defer scope.Close()
	return fn(SetTenantScope(ctx, scope))
}
