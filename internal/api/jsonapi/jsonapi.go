// Package jsonapi renders JSON:API 1.1 envelopes and maps classified errors
// onto JSON:API error objects. Only encoding/json is used.
package jsonapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/d9705996/confera/internal/apperr"
)

const contentType = "application/vnd.api+json"

// maxBodyBytes bounds request bodies accepted by Decode.
const maxBodyBytes = 1 << 20

// Document is a JSON:API single-resource document.
type Document struct {
	Data any  `json:"data"`
	Meta Meta `json:"meta,omitempty"`
}

// ListDocument is a JSON:API collection document.
type ListDocument struct {
	Data []any `json:"data"`
	Meta Meta  `json:"meta,omitempty"`
}

// ResourceObject is the canonical JSON:API resource object.
type ResourceObject struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Attributes any    `json:"attributes,omitempty"`
	Meta       Meta   `json:"meta,omitempty"`
}

// Meta is a free-form map of non-standard meta-information.
type Meta map[string]any

// ErrorDocument is a JSON:API error response document.
type ErrorDocument struct {
	Errors []ErrorObject `json:"errors"`
}

// ErrorObject represents a single JSON:API error. Code is the stable
// machine-readable value clients branch on, e.g. TOKEN_EXPIRED.
type ErrorObject struct {
	Status string       `json:"status,omitempty"`
	Code   string       `json:"code,omitempty"`
	Title  string       `json:"title,omitempty"`
	Detail string       `json:"detail,omitempty"`
	Source *ErrorSource `json:"source,omitempty"`
}

// ErrorSource identifies the source of a JSON:API error.
type ErrorSource struct {
	Pointer   string `json:"pointer,omitempty"`
	Parameter string `json:"parameter,omitempty"`
}

// Render writes a JSON:API document to w with the given HTTP status code.
func Render(w http.ResponseWriter, status int, doc any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(doc)
}

// RenderOne writes a single-resource document.
func RenderOne(w http.ResponseWriter, status int, data any) {
	Render(w, status, Document{Data: data})
}

// RenderList writes a collection document.
func RenderList(w http.ResponseWriter, status int, data []any, meta Meta) {
	if data == nil {
		data = []any{}
	}
	Render(w, status, ListDocument{Data: data, Meta: meta})
}

// RenderError writes a single JSON:API error.
func RenderError(w http.ResponseWriter, status int, code, title, detail string) {
	RenderErrors(w, status, []ErrorObject{
		{
			Status: strconv.Itoa(status),
			Code:   code,
			Title:  title,
			Detail: detail,
		},
	})
}

// RenderErrors writes multiple JSON:API errors.
func RenderErrors(w http.ResponseWriter, status int, errs []ErrorObject) {
	Render(w, status, ErrorDocument{Errors: errs})
}

// RenderAppError writes err using its kind's status and code. Causes are
// never rendered; Internal errors get an opaque detail.
func RenderAppError(w http.ResponseWriter, err error) {
	e := apperr.From(err)
	status := e.Kind.Status()
	RenderError(w, status, e.Kind.Code(), http.StatusText(status), e.ClientDetail())
}

// Decode reads a JSON request body into v. A body wrapped in a JSON:API
// envelope ({"data":{"attributes":{...}}}) is unwrapped first. Failures are
// returned as apperr.Validation.
func Decode(r *http.Request, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err != nil {
		return apperr.Newf(apperr.Validation, "request body could not be read")
	}
	var envelope struct {
		Data *struct {
			Attributes json.RawMessage `json:"attributes"`
		} `json:"data"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Data != nil && len(envelope.Data.Attributes) > 0 {
		body = envelope.Data.Attributes
	}
	if err := json.Unmarshal(body, v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return apperr.Newf(apperr.Validation, fmt.Sprintf("field %q has the wrong type", typeErr.Field))
		}
		return apperr.Newf(apperr.Validation, "request body must be valid JSON")
	}
	return nil
}
