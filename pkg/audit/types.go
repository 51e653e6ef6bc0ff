package audit

import (
	"net/http"
	"strings"
	"time"

	"github.com/platinummonkey/gatekeeper/pkg/contextkeys"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

// EventType represents the category of audit event
type EventType string

const (
	EventTypeRoleCreate EventType = "authz.role_create"
	EventTypeRoleUpdate EventType = "authz.role_update"
	EventTypeRoleDelete EventType = "authz.role_delete"
	EventTypeRoleAssign EventType = "authz.role_assign"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
)

// Event is a single audit log entry
type Event struct {
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor is the authenticated user who made the change
	Actor string `json:"actor,omitempty"`
	// Subject is the user whose assignment changed
	Subject string `json:"subject,omitempty"`
	Role    string `json:"role,omitempty"`

	Permission rbac.Permission `json:"permission,omitempty"`
	Changes    *ChangeDetails  `json:"changes,omitempty"`

	RequestID string `json:"request_id,omitempty"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`

	Message      string `json:"message,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// ChangeDetails tracks a role's permissions before and after a write
type ChangeDetails struct {
	Before []rbac.Permission `json:"before,omitempty"`
	After  []rbac.Permission `json:"after,omitempty"`
}

// NewEvent builds an event stamped with the request's actor, request id
// and client address
func NewEvent(r *http.Request, eventType EventType, status EventStatus) *Event {
	event := &Event{
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		Status:    status,
	}
	if r == nil {
		return event
	}

	ctx := r.Context()
	event.Actor = contextkeys.GetUserID(ctx)
	event.RequestID = contextkeys.GetRequestID(ctx)
	event.Method = r.Method
	event.Path = r.URL.Path
	event.IPAddress = clientIP(r)
	return event
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
