package apperr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/d9705996/confera/internal/apperr"
	"github.com/stretchr/testify/assert"
)

func TestKindStatusAndCode(t *testing.T) {
	cases := map[apperr.Kind]struct {
		status int
		code   string
	}{
		apperr.Validation:             {http.StatusBadRequest, "VALIDATION_ERROR"},
		apperr.InvalidCredentials:     {http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		apperr.EmailNotVerified:       {http.StatusUnauthorized, "EMAIL_NOT_VERIFIED"},
		apperr.EmailAlreadyRegistered: {http.StatusConflict, "EMAIL_ALREADY_REGISTERED"},
		apperr.InvalidJoinCode:        {http.StatusBadRequest, "INVALID_JOIN_CODE"},
		apperr.InvalidGoogleToken:     {http.StatusUnauthorized, "INVALID_GOOGLE_TOKEN"},
		apperr.TokenExpired:           {http.StatusUnauthorized, "TOKEN_EXPIRED"},
		apperr.TokenInvalid:           {http.StatusForbidden, "TOKEN_INVALID"},
		apperr.UnauthorizedOrg:        {http.StatusUnauthorized, "UNAUTHORIZED_ORG"},
		apperr.NotAMember:             {http.StatusBadRequest, "NOT_A_MEMBER"},
		apperr.UserOrgUnlinked:        {http.StatusUnauthorized, "USER_ORG_UNLINKED"},
		apperr.Internal:               {http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for kind, want := range cases {
		assert.Equal(t, want.status, kind.Status(), want.code)
		assert.Equal(t, want.code, kind.Code())
		assert.Equal(t, want.code, kind.String())
	}
}

func TestErrorClassification(t *testing.T) {
	cause := errors.New("db down")
	err := fmt.Errorf("login: %w", apperr.Wrap(apperr.Internal, cause))

	assert.True(t, apperr.Is(err, apperr.Internal))
	assert.False(t, apperr.Is(err, apperr.InvalidCredentials))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, apperr.Internal, apperr.KindOf(err))
	assert.Equal(t, "an internal error occurred", apperr.From(err).ClientDetail())
	assert.Contains(t, err.Error(), "db down")
}

func TestClientDetail(t *testing.T) {
	assert.Equal(t, "email or password is incorrect", apperr.New(apperr.InvalidCredentials).ClientDetail())
	assert.Equal(t, "name is required", apperr.Newf(apperr.Validation, "name is required").ClientDetail())
}

func TestFrom_UnclassifiedIsInternal(t *testing.T) {
	e := apperr.From(errors.New("boom"))
	assert.Equal(t, apperr.Internal, e.Kind)
	assert.Equal(t, apperr.Internal, apperr.KindOf(errors.New("boom")))
}
