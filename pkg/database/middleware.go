package database

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot-engine/pkg/apperrors"
	"github.com/reviewpilot/reviewpilot-engine/pkg/auth"
)

// PrincipalResolver maps a verified identity subject to the provisioned user and organization.
// It runs without tenant scope since the organization is not known yet.
type PrincipalResolver func(ctx context.Context, subject string) (*auth.Principal, error)

// WithTenantContext creates middleware that sets up a tenant-scoped DB connection.
// It runs AFTER auth middleware: the JWT subject is resolved to a user, and the user's
// organization becomes the RLS tenant for the rest of the request.
// The connection is automatically cleaned up after the handler returns.
func WithTenantContext(db *DB, resolve PrincipalResolver, logger *zap.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims, ok := auth.GetClaims(r.Context())
			if !ok || claims.Subject == "" {
				logger.Error("Missing subject in claims")
				writeError(w, http.StatusUnauthorized, "unauthorized", "Missing identity")
				return
			}

			principal, err := resolvePrincipal(r.Context(), db, resolve, claims.Subject)
			if err != nil {
				if errors.Is(err, apperrors.ErrNotFound) {
					writeError(w, http.StatusForbidden, "not_provisioned", "User is not provisioned; call POST /api/me/provision first")
					return
				}
				logger.Error("Failed to resolve principal",
					zap.String("subject", claims.Subject),
					zap.Error(err))
				writeError(w, http.StatusInternalServerError, "database_error", "Database connection error")
				return
			}

			scope, err := db.WithTenant(r.Context(), principal.OrganizationID)
			if err != nil {
				logger.Error("Failed to acquire tenant connection",
					zap.String("organization_id", principal.OrganizationID.String()),
					zap.Error(err))
				writeError(w, http.StatusInternalServerError, "database_error", "Database connection error")
				return
			}
			defer scope.Close()

			ctx := SetTenantScope(r.Context(), scope)
			ctx = auth.SetPrincipal(ctx, principal)
			next(w, r.WithContext(ctx))
		}
	}
}

// resolvePrincipal runs the resolver on a short-lived unscoped connection.
func resolvePrincipal(ctx context.Context, db *DB, resolve PrincipalResolver, subject string) (*auth.Principal, error) {
	var principal *auth.Principal
	err := db.RunWithoutTenant(ctx, func(ctx context.Context) error {
		p, err := resolve(ctx, subject)
		if err != nil {
			return err
		}
		principal = p
		return nil
	})
	return principal, err
}

// WithUnscopedContext attaches an unscoped connection for authenticated routes that run before
// the caller has an organization, such as provisioning and invitation acceptance.
func WithUnscopedContext(db *DB, logger *zap.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			scope, err := db.WithoutTenant(r.Context())
			if err != nil {
				logger.Error("Failed to acquire connection", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "database_error", "Database connection error")
				return
			}
			defer scope.Close()

			next(w, r.WithContext(SetTenantScope(r.Context(), scope)))
		}
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}
