package session

import (
	"context"

	"github.com/d9705996/confera/internal/auth"
	"github.com/d9705996/confera/internal/model"
)

// CreateGoogleUser runs the insert step of Google sign-in on its own, so a
// test can replay the second of two concurrent first sign-ins.
func (m *Manager) CreateGoogleUser(ctx context.Context, id *auth.GoogleIdentity) (*model.User, error) {
	return m.createGoogleUser(ctx, id)
}
