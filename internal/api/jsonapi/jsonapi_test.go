package jsonapi_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/d9705996/confera/internal/api/jsonapi"
	"github.com/d9705996/confera/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderOne(t *testing.T) {
	type attrs struct {
		Name string `json:"name"`
	}

	w := httptest.NewRecorder()
	jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
		Type:       "organization",
		ID:         "1",
		Attributes: attrs{Name: "Acme"},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/vnd.api+json", w.Header().Get("Content-Type"))

	var doc struct {
		Data jsonapi.ResourceObject `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "organization", doc.Data.Type)
	assert.Equal(t, map[string]any{"name": "Acme"}, doc.Data.Attributes)
}

func TestRenderList_EmptySlice(t *testing.T) {
	w := httptest.NewRecorder()
	jsonapi.RenderList(w, http.StatusOK, nil, nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var doc jsonapi.ListDocument
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.NotNil(t, doc.Data)
	assert.Len(t, doc.Data, 0)
}

func TestRenderError(t *testing.T) {
	w := httptest.NewRecorder()
	jsonapi.RenderError(w, http.StatusNotFound, "NOT_FOUND", "Not Found", "the resource does not exist")

	assert.Equal(t, http.StatusNotFound, w.Code)

	var doc jsonapi.ErrorDocument
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	require.Len(t, doc.Errors, 1)
	assert.Equal(t, "404", doc.Errors[0].Status)
	assert.Equal(t, "NOT_FOUND", doc.Errors[0].Code)
	assert.Equal(t, "the resource does not exist", doc.Errors[0].Detail)
}

func TestRenderErrors_MultipleErrors(t *testing.T) {
	w := httptest.NewRecorder()
	jsonapi.RenderErrors(w, http.StatusBadRequest, []jsonapi.ErrorObject{
		{Code: "VALIDATION_ERROR", Detail: "name is required", Source: &jsonapi.ErrorSource{Pointer: "/name"}},
		{Code: "VALIDATION_ERROR", Detail: "email is required", Source: &jsonapi.ErrorSource{Pointer: "/email"}},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var doc jsonapi.ErrorDocument
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Len(t, doc.Errors, 2)
}

func TestRenderAppError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
		detail string
	}{
		{apperr.New(apperr.TokenExpired), http.StatusUnauthorized, "TOKEN_EXPIRED", "access token has expired"},
		{apperr.New(apperr.TokenInvalid), http.StatusForbidden, "TOKEN_INVALID", "access token is invalid"},
		{apperr.Newf(apperr.Validation, "email is required"), http.StatusBadRequest, "VALIDATION_ERROR", "email is required"},
		{apperr.Wrap(apperr.Internal, errors.New("pq: connection refused")), http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred"},
		{errors.New("raw driver error"), http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		jsonapi.RenderAppError(w, tc.err)

		assert.Equal(t, tc.status, w.Code)
		var doc jsonapi.ErrorDocument
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
		require.Len(t, doc.Errors, 1)
		assert.Equal(t, tc.code, doc.Errors[0].Code)
		assert.Equal(t, tc.detail, doc.Errors[0].Detail)
		assert.NotContains(t, w.Body.String(), "connection refused")
	}
}

func TestDecode(t *testing.T) {
	type body struct {
		Email string `json:"email"`
	}

	var plain body
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@x.com"}`))
	require.NoError(t, jsonapi.Decode(r, &plain))
	assert.Equal(t, "a@x.com", plain.Email)

	var wrapped body
	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"data":{"type":"login","attributes":{"email":"b@x.com"}}}`))
	require.NoError(t, jsonapi.Decode(r, &wrapped))
	assert.Equal(t, "b@x.com", wrapped.Email)

	var bad body
	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{not json`))
	err := jsonapi.Decode(r, &bad)
	assert.True(t, apperr.Is(err, apperr.Validation))

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":42}`))
	err = jsonapi.Decode(r, &bad)
	assert.True(t, apperr.Is(err, apperr.Validation))
}
