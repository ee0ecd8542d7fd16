package auth

import (
	"context"

	"github.com/google/uuid"
)

// OrganizationIDFromContext returns the caller's organization, or uuid.Nil.
func OrganizationIDFromContext(ctx context.Context) uuid.UUID {
	p, ok := GetPrincipal(ctx)
	if !ok {
		return uuid.Nil
	}
	return p.OrganizationID
}

// UserIDFromContext returns the caller's user ID, or uuid.Nil.
func UserIDFromContext(ctx context.Context) uuid.UUID {
	p, ok := GetPrincipal(ctx)
	if !ok {
		return uuid.Nil
	}
	return p.UserID
}

// SubjectFromContext returns the token subject, preferring the resolved principal.
func SubjectFromContext(ctx context.Context) string {
	if p, ok := GetPrincipal(ctx); ok && p.Subject != "" {
		return p.Subject
	}
	if claims, ok := GetClaims(ctx); ok && claims != nil {
		return claims.Subject
	}
	return ""
}
