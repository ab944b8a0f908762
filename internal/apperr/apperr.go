// Package apperr defines the error taxonomy shared by the session manager and
// the request gate. Every kind maps to a fixed HTTP status and a stable
// machine-readable code that clients branch on.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error for the client.
type Kind uint8

const (
	Internal Kind = iota
	Validation
	InvalidCredentials
	EmailNotVerified
	EmailAlreadyRegistered
	InvalidJoinCode
	InvalidGoogleToken
	MissingToken
	TokenExpired
	TokenInvalid
	InvalidRefreshToken
	UnauthorizedOrg
	NotAMember
	UserOrgUnlinked
	Forbidden
	DuplicateMembership
	LastMembership
	InvalidResetToken
	InvalidVerificationToken
	NotFound
	RateLimited
)

type kindInfo struct {
	status int
	code   string
	detail string
}

var kinds = map[Kind]kindInfo{
	Internal:                 {http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred"},
	Validation:               {http.StatusBadRequest, "VALIDATION_ERROR", "request is invalid"},
	InvalidCredentials:       {http.StatusUnauthorized, "INVALID_CREDENTIALS", "email or password is incorrect"},
	EmailNotVerified:         {http.StatusUnauthorized, "EMAIL_NOT_VERIFIED", "email address has not been verified"},
	EmailAlreadyRegistered:   {http.StatusConflict, "EMAIL_ALREADY_REGISTERED", "email address is already registered"},
	InvalidJoinCode:          {http.StatusBadRequest, "INVALID_JOIN_CODE", "join code does not match any organization"},
	InvalidGoogleToken:       {http.StatusUnauthorized, "INVALID_GOOGLE_TOKEN", "google token could not be verified"},
	MissingToken:             {http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header is required"},
	TokenExpired:             {http.StatusUnauthorized, "TOKEN_EXPIRED", "access token has expired"},
	TokenInvalid:             {http.StatusForbidden, "TOKEN_INVALID", "access token is invalid"},
	InvalidRefreshToken:      {http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "refresh token is invalid or expired"},
	UnauthorizedOrg:          {http.StatusUnauthorized, "UNAUTHORIZED_ORG", "organization membership is no longer valid"},
	NotAMember:               {http.StatusBadRequest, "NOT_A_MEMBER", "user is not a member of the organization"},
	UserOrgUnlinked:          {http.StatusUnauthorized, "USER_ORG_UNLINKED", "current organization is no longer linked to the user"},
	Forbidden:                {http.StatusForbidden, "FORBIDDEN", "your role does not allow this action"},
	DuplicateMembership:      {http.StatusConflict, "DUPLICATE_MEMBERSHIP", "membership already exists"},
	LastMembership:           {http.StatusConflict, "LAST_MEMBERSHIP", "a user must belong to at least one organization"},
	InvalidResetToken:        {http.StatusBadRequest, "INVALID_RESET_TOKEN", "token is invalid or has expired"},
	InvalidVerificationToken: {http.StatusBadRequest, "INVALID_VERIFICATION_TOKEN", "verification token is invalid"},
	NotFound:                 {http.StatusNotFound, "NOT_FOUND", "the resource does not exist"},
	RateLimited:              {http.StatusTooManyRequests, "RATE_LIMITED", "too many requests"},
}

// Status returns the HTTP status code for k.
func (k Kind) Status() int { return kinds[k].status }

// Code returns the machine-readable code for k.
func (k Kind) Code() string { return kinds[k].code }

// String implements fmt.Stringer.
func (k Kind) String() string { return kinds[k].code }

// Error is a classified error. Err holds the server-side cause and is never
// rendered to clients.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.Code()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// ClientDetail is the message that is safe to show to the client.
func (e *Error) ClientDetail() string {
	if e.Kind == Internal || e.Detail == "" {
		return kinds[e.Kind].detail
	}
	return e.Detail
}

// New returns an error of the given kind with the default detail.
func New(kind Kind) *Error {
	return &Error{Kind: kind}
}

// Newf returns an error of the given kind with a client-facing detail.
func Newf(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Wrap classifies cause under kind.
func Wrap(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Err: cause}
}

// KindOf reports the kind of err. Unclassified errors are Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// From returns err as an *Error, wrapping unclassified errors as Internal.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(Internal, err)
}
