package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/d9705996/confera/internal/api/jsonapi"
	"github.com/d9705996/confera/internal/api/middleware"
	"github.com/d9705996/confera/internal/apperr"
	"github.com/d9705996/confera/internal/audit"
	"github.com/d9705996/confera/internal/membership"
	"github.com/d9705996/confera/internal/session"
)

// OrganizationHandler handles /api/v1/organization/* routes. Every route is
// mounted behind RequireRole("admin") and acts on the caller's current
// organization.
type OrganizationHandler struct {
	members *membership.Resolver
	auditor session.Auditor
}

// NewOrganizationHandler creates an OrganizationHandler.
func NewOrganizationHandler(members *membership.Resolver, auditor session.Auditor) *OrganizationHandler {
	return &OrganizationHandler{members: members, auditor: auditor}
}

type memberAttrs struct {
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	IsVerified bool      `json:"isVerified"`
	Role       string    `json:"role"`
	JoinedAt   time.Time `json:"joinedAt"`
}

// ListMembers handles GET /api/v1/organization/members.
func (h *OrganizationHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromContext(r.Context())
	members, err := h.members.ListMembers(r.Context(), id.OrganizationID())
	if err != nil {
		middleware.LoggerFrom(r.Context()).ErrorContext(r.Context(), "list members", "org_id", id.OrganizationID(), "err", err)
		jsonapi.RenderAppError(w, apperr.Wrap(apperr.Internal, err))
		return
	}
	data := make([]any, 0, len(members))
	for _, m := range members {
		data = append(data, jsonapi.ResourceObject{
			Type: "member",
			ID:   m.UserID,
			Attributes: memberAttrs{
				Name:       m.Name,
				Email:      m.Email,
				IsVerified: m.IsVerified,
				Role:       m.Role,
				JoinedAt:   m.JoinedAt,
			},
		})
	}
	jsonapi.RenderList(w, http.StatusOK, data, jsonapi.Meta{"total": len(members)})
}

// RemoveMember handles DELETE /api/v1/organization/members/{userID}. A user's
// last membership cannot be removed.
func (h *OrganizationHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := middleware.IdentityFromContext(ctx)
	userID := r.PathValue("userID")

	err := h.members.RemoveMembership(ctx, userID, id.OrganizationID())
	switch {
	case err == nil:
	case errors.Is(err, membership.ErrNotAMember):
		jsonapi.RenderAppError(w, apperr.Newf(apperr.NotFound, "user is not a member of this organization"))
		return
	case errors.Is(err, membership.ErrLastMembership):
		jsonapi.RenderAppError(w, apperr.New(apperr.LastMembership))
		return
	default:
		middleware.LoggerFrom(ctx).ErrorContext(ctx, "remove member", "user_id", userID, "err", err)
		jsonapi.RenderAppError(w, apperr.Wrap(apperr.Internal, err))
		return
	}

	if err := h.auditor.Record(ctx, audit.Event{
		Action:         audit.ActionMembershipRemoved,
		ActorUserID:    id.UserID(),
		OrganizationID: id.OrganizationID(),
		Fields:         map[string]any{"member_user_id": userID},
	}); err != nil {
		middleware.LoggerFrom(ctx).WarnContext(ctx, "audit record failed", "event", audit.ActionMembershipRemoved, "err", err)
	}
	w.WriteHeader(http.StatusNoContent)
}
