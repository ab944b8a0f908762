// Package audit records security-relevant events: one row in the audit_log
// table and one structured log line per event.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/d9705996/confera/internal/model"
	"github.com/d9705996/confera/internal/store"
)

// Actions recorded by the session manager.
const (
	ActionRegistered        = "auth.registered"
	ActionGoogleLinked      = "auth.google.linked"
	ActionGoogleCreated     = "auth.google.created"
	ActionLogout            = "auth.logout"
	ActionSwitchOrg         = "auth.switch_org"
	ActionPasswordReset     = "auth.password_reset"
	ActionMembershipRemoved = "membership.removed"
)

// Event is one audit record.
type Event struct {
	Action         string
	ActorUserID    string
	OrganizationID string
	Fields         map[string]any
}

// Recorder persists events through the credential store.
type Recorder struct {
	store *store.Store
	log   *slog.Logger
	now   func() time.Time
}

// NewRecorder returns a Recorder.
func NewRecorder(s *store.Store, log *slog.Logger) *Recorder {
	return &Recorder{store: s, log: log, now: time.Now}
}

// Record writes e. The log line is emitted even if the insert fails.
func (r *Recorder) Record(ctx context.Context, e Event) error {
	e.Action = strings.TrimSpace(e.Action)
	if e.Action == "" {
		return errors.New("audit: action is required")
	}
	fields := e.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	meta, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("audit: marshal fields: %w", err)
	}

	r.log.InfoContext(ctx, "audit",
		"event", e.Action,
		"user_id", e.ActorUserID,
		"org_id", e.OrganizationID,
		"fields", fields,
	)

	entry := &model.AuditEntry{
		OccurredAt:     r.now().UTC(),
		ActorUserID:    optional(e.ActorUserID),
		OrganizationID: optional(e.OrganizationID),
		Action:         e.Action,
		Metadata:       string(meta),
	}
	if err := r.store.AppendAudit(ctx, entry); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
