// Package audit provides security audit logging for SIEM consumption.
// Events are emitted as structured JSON under the "security_audit" logger.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot-engine/pkg/auth"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventInjectionAttempt is logged when libinjection flags user-supplied text.
	EventInjectionAttempt SecurityEventType = "injection_attempt"
	// EventWebhookRejected is logged when an inbound webhook fails verification.
	EventWebhookRejected SecurityEventType = "webhook_rejected"
	// EventCrossTenantAccess is logged when a caller references a resource outside their reach.
	EventCrossTenantAccess SecurityEventType = "cross_tenant_access"
	// EventOAuthStateRejected is logged when a platform OAuth callback carries an unknown state.
	EventOAuthStateRejected SecurityEventType = "oauth_state_rejected"
)

// SecurityEvent represents an auditable security event.
type SecurityEvent struct {
	Timestamp      time.Time         `json:"timestamp"`
	EventType      SecurityEventType `json:"event_type"`
	OrganizationID uuid.UUID         `json:"organization_id,omitempty"`
	UserID         uuid.UUID         `json:"user_id,omitempty"`
	ClientIP       string            `json:"client_ip,omitempty"`
	Details        any               `json:"details"`
	Severity       string            `json:"severity"` // info, warning, critical
}

// InjectionDetails describes flagged input.
type InjectionDetails struct {
	Field       string `json:"field"`
	Value       string `json:"value"`
	Kind        string `json:"kind"` // sqli or xss
	Fingerprint string `json:"fingerprint,omitempty"`
}

// SecurityAuditor logs security events.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates an auditor logging under the "security_audit" namespace.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit")}
}

func (a *SecurityAuditor) newEvent(ctx context.Context, eventType SecurityEventType, severity, clientIP string, details any) SecurityEvent {
	return SecurityEvent{
		Timestamp:      time.Now().UTC(),
		EventType:      eventType,
		OrganizationID: auth.OrganizationIDFromContext(ctx),
		UserID:         auth.UserIDFromContext(ctx),
		ClientIP:       clientIP,
		Details:        details,
		Severity:       severity,
	}
}

func eventFields(event SecurityEvent) []zap.Field {
	// Marshaling known types cannot fail.
	eventJSON, _ := json.Marshal(event)
	return []zap.Field{
		zap.String("event_json", string(eventJSON)),
		zap.String("event_type", string(event.EventType)),
		zap.String("organization_id", event.OrganizationID.String()),
		zap.String("user_id", event.UserID.String()),
		zap.String("client_ip", event.ClientIP),
		zap.String("severity", event.Severity),
	}
}

// LogInjectionAttempt records flagged input at ERROR level with critical severity.
func (a *SecurityAuditor) LogInjectionAttempt(ctx context.Context, details InjectionDetails, clientIP string) {
	event := a.newEvent(ctx, EventInjectionAttempt, "critical", clientIP, details)
	fields := append(eventFields(event),
		zap.String("field", details.Field),
		zap.String("kind", details.Kind),
		zap.String("fingerprint", details.Fingerprint))
	a.logger.Error("Injection attempt detected", fields...)
}

// LogWebhookRejected records a webhook that failed signature or token verification.
func (a *SecurityAuditor) LogWebhookRejected(ctx context.Context, source, reason, clientIP string) {
	event := a.newEvent(ctx, EventWebhookRejected, "warning", clientIP, map[string]string{
		"source": source,
		"reason": reason,
	})
	a.logger.Warn("Webhook rejected", append(eventFields(event), zap.String("source", source), zap.String("reason", reason))...)
}

// LogCrossTenantAccess records a reference to a resource the caller may not see.
func (a *SecurityAuditor) LogCrossTenantAccess(ctx context.Context, resource string, resourceID uuid.UUID, clientIP string) {
	event := a.newEvent(ctx, EventCrossTenantAccess, "warning", clientIP, map[string]string{
		"resource":    resource,
		"resource_id": resourceID.String(),
	})
	a.logger.Warn("Cross-tenant access attempt", append(eventFields(event), zap.String("resource", resource))...)
}

// LogOAuthStateRejected records a platform OAuth callback with an invalid or replayed state.
func (a *SecurityAuditor) LogOAuthStateRejected(ctx context.Context, platform, clientIP string) {
	event := a.newEvent(ctx, EventOAuthStateRejected, "warning", clientIP, map[string]string{
		"platform": platform,
	})
	a.logger.Warn("OAuth state rejected", append(eventFields(event), zap.String("platform", platform))...)
}
