package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/reviewpilot/reviewpilot-engine/pkg/apperrors"
	"github.com/reviewpilot/reviewpilot-engine/pkg/crypto"
	"github.com/reviewpilot/reviewpilot-engine/pkg/models"
)

// PlatformConnectionRepository defines the interface for platform connection data access.
// Tokens are sealed before they are written and opened after they are read.
type PlatformConnectionRepository interface {
	// Upsert creates or replaces the connection for (business, platform).
	Upsert(ctx context.Context, c *models.PlatformConnection) error
	Get(ctx context.Context, organizationID, businessID uuid.UUID, platform string) (*models.PlatformConnection, error)
	ListByBusiness(ctx context.Context, organizationID, businessID uuid.UUID) ([]*models.PlatformConnection, error)
	// ListActiveByPlatforms spans organizations; use with an unscoped context.
	ListActiveByPlatforms(ctx context.Context, platforms []string) ([]*models.PlatformConnection, error)
	// FindByExternalAccount spans organizations; use with an unscoped context.
	FindByExternalAccount(ctx context.Context, platform, externalAccountID string) ([]*models.PlatformConnection, error)
	UpdateTokens(ctx context.Context, c *models.PlatformConnection) error
	MarkSynced(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkError(ctx context.Context, id uuid.UUID, message string) error
	Delete(ctx context.Context, organizationID, businessID uuid.UUID, platform string) error
}

type platformConnectionRepository struct {
	cipher *crypto.TokenCipher
}

// NewPlatformConnectionRepository creates a repository that seals tokens with cipher.
func NewPlatformConnectionRepository(cipher *crypto.TokenCipher) PlatformConnectionRepository {
	return &platformConnectionRepository{cipher: cipher}
}

const connectionColumns = `id, organization_id, business_id, platform, external_account_id, external_account_name,
	access_token, refresh_token, token_expires_at, scopes, status, last_error, connected_by, last_synced_at,
	created_at, updated_at`

func (r *platformConnectionRepository) scan(row pgx.Row) (*models.PlatformConnection, error) {
	var c models.PlatformConnection
	var sealedAccess, sealedRefresh string
	err := row.Scan(&c.ID, &c.OrganizationID, &c.BusinessID, &c.Platform, &c.ExternalAccountID,
		&c.ExternalAccountName, &sealedAccess, &sealedRefresh, &c.TokenExpiresAt, &c.Scopes, &c.Status,
		&c.LastError, &c.ConnectedBy, &c.LastSyncedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}

	binding := crypto.ConnectionBinding(c.BusinessID.String(), c.Platform)
	if c.AccessToken, err = r.cipher.Open(sealedAccess, binding); err != nil {
		return nil, fmt.Errorf("failed to decrypt access token for connection %s: %w", c.ID, err)
	}
	if c.RefreshToken, err = r.cipher.Open(sealedRefresh, binding); err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token for connection %s: %w", c.ID, err)
	}
	return &c, nil
}

func (r *platformConnectionRepository) seal(c *models.PlatformConnection) (access, refresh string, err error) {
	binding := crypto.ConnectionBinding(c.BusinessID.String(), c.Platform)
	if access, err = r.cipher.Seal(c.AccessToken, binding); err != nil {
		return "", "", fmt.Errorf("failed to encrypt access token: %w", err)
	}
	if refresh, err = r.cipher.Seal(c.RefreshToken, binding); err != nil {
		return "", "", fmt.Errorf("failed to encrypt refresh token: %w", err)
	}
	return access, refresh, nil
}

func (r *platformConnectionRepository) list(ctx context.Context, query string, args ...any) ([]*models.PlatformConnection, error) {
	scope, err := scopeConn(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := scope.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list platform connections: %w", err)
	}
	defer rows.Close()

	out := make([]*models.PlatformConnection, 0)
	for rows.Next() {
		c, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan platform connection: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating platform connections: %w", err)
	}
	return out, nil
}

func (r *platformConnectionRepository) Upsert(ctx context.Context, c *models.PlatformConnection) error {
	scope, err := scopeConn(ctx)
	if err != nil {
		return err
	}

	access, refresh, err := r.seal(c)
	if err != nil {
		return err
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = models.ConnectionActive
	}
	now := time.Now()
	c.UpdatedAt = now

	err = scope.Conn.QueryRow(ctx, `
		INSERT INTO platform_connections (id, organization_id, business_id, platform, external_account_id,
			external_account_name, access_token, refresh_token, token_expires_at, scopes, status, last_error,
			connected_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, '', $12, $13, $13)
		ON CONFLICT (business_id, platform) DO UPDATE
		SET external_account_id = EXCLUDED.external_account_id,
		    external_account_name = EXCLUDED.external_account_name,
		    access_token = EXCLUDED.access_token,
		    refresh_token = EXCLUDED.refresh_token,
		    token_expires_at = EXCLUDED.token_expires_at,
		    scopes = EXCLUDED.scopes,
		    status = EXCLUDED.status,
		    last_error = '',
		    connected_by = EXCLUDED.connected_by,
		    updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`,
		c.ID, c.OrganizationID, c.BusinessID, c.Platform, c.ExternalAccountID, c.ExternalAccountName,
		access, refresh, c.TokenExpiresAt, c.Scopes, c.Status, c.ConnectedBy, now).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save platform connection: %w", err)
	}
	return nil
}

func (r *platformConnectionRepository) Get(ctx context.Context, organizationID, businessID uuid.UUID, platform string) (*models.PlatformConnection, error) {
	scope, err := scopeConn(ctx)
	if err != nil {
		return nil, err
	}

	c, err := r.scan(scope.Conn.QueryRow(ctx, `
		SELECT `+connectionColumns+` FROM platform_connections
		WHERE organization_id = $1 AND business_id = $2 AND platform = $3`, organizationID, businessID, platform))
	if err != nil {
		return nil, notFound(err, "platform connection")
	}
	return c, nil
}

func (r *platformConnectionRepository) ListByBusiness(ctx context.Context, organizationID, businessID uuid.UUID) ([]*models.PlatformConnection, error) {
	return r.list(ctx, `
		SELECT `+connectionColumns+` FROM platform_connections
		WHERE organization_id = $1 AND business_id = $2
		ORDER BY platform`, organizationID, businessID)
}

func (r *platformConnectionRepository) ListActiveByPlatforms(ctx context.Context, platforms []string) ([]*models.PlatformConnection, error) {
	return r.list(ctx, `
		SELECT `+connectionColumns+` FROM platform_connections
		WHERE status <> 'disconnected' AND platform = ANY($1)
		ORDER BY last_synced_at NULLS FIRST`, platforms)
}

func (r *platformConnectionRepository) FindByExternalAccount(ctx context.Context, platform, externalAccountID string) ([]*models.PlatformConnection, error) {
	return r.list(ctx, `
		SELECT `+connectionColumns+` FROM platform_connections
		WHERE platform = $1 AND external_account_id = $2 AND status <> 'disconnected'`, platform, externalAccountID)
}

func (r *platformConnectionRepository) UpdateTokens(ctx context.Context, c *models.PlatformConnection) error {
	scope, err := scopeConn(ctx)
	if err != nil {
		return err
	}

	access, refresh, err := r.seal(c)
	if err != nil {
		return err
	}
	c.UpdatedAt = time.Now()

	result, err := scope.Conn.Exec(ctx, `
		UPDATE platform_connections
		SET access_token = $2, refresh_token = $3, token_expires_at = $4, status = 'active', last_error = '',
		    updated_at = $5
		WHERE id = $1`, c.ID, access, refresh, c.TokenExpiresAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update platform tokens: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	c.Status = models.ConnectionActive
	return nil
}

func (r *platformConnectionRepository) MarkSynced(ctx context.Context, id uuid.UUID, at time.Time) error {
	scope, err := scopeConn(ctx)
	if err != nil {
		return err
	}

	_, err = scope.Conn.Exec(ctx, `
		UPDATE platform_connections
		SET last_synced_at = $2, status = 'active', last_error = '', updated_at = now()
		WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to mark connection synced: %w", err)
	}
	return nil
}

func (r *platformConnectionRepository) MarkError(ctx context.Context, id uuid.UUID, message string) error {
	scope, err := scopeConn(ctx)
	if err != nil {
		return err
	}

	_, err = scope.Conn.Exec(ctx, `
		UPDATE platform_connections SET status = 'error', last_error = $2, updated_at = now()
		WHERE id = $1`, id, message)
	if err != nil {
		return fmt.Errorf("failed to mark connection error: %w", err)
	}
	return nil
}

func (r *platformConnectionRepository) Delete(ctx context.Context, organizationID, businessID uuid.UUID, platform string) error {
	scope, err := scopeConn(ctx)
	if err != nil {
		return err
	}

	result, err := scope.Conn.Exec(ctx, `
		DELETE FROM platform_connections
		WHERE organization_id = $1 AND business_id = $2 AND platform = $3`, organizationID, businessID, platform)
	if err != nil {
		return fmt.Errorf("failed to delete platform connection: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

var _ PlatformConnectionRepository = (*platformConnectionRepository)(nil)
