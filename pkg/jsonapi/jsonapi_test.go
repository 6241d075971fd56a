package jsonapi_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/artpar/carebill/pkg/jsonapi"
)

func TestWriteData(t *testing.T) {
	w := httptest.NewRecorder()
	jsonapi.WriteData(w, http.StatusOK, map[string]int{"billed": 2}, jsonapi.Meta{"family": "home_care"})

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != jsonapi.ContentType {
		t.Errorf("Content-Type = %q, want %q", ct, jsonapi.ContentType)
	}

	var doc struct {
		Data   map[string]int `json:"data"`
		Meta   map[string]any `json:"meta"`
		Errors []any          `json:"errors"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Data["billed"] != 2 || doc.Meta["family"] != "home_care" || doc.Errors != nil {
		t.Errorf("document = %+v", doc)
	}
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		errs       []jsonapi.Error
		wantStatus int
		wantCode   string
	}{
		{"parameter", []jsonapi.Error{jsonapi.ErrInvalidParameter("days", "must be positive")}, 400, "invalid_parameter"},
		{"unauthorized", []jsonapi.Error{jsonapi.ErrUnauthorized("")}, 401, "unauthorized"},
		{"not found", []jsonapi.Error{jsonapi.ErrNotFound("family", "x")}, 404, "not_found"},
		{"unavailable", []jsonapi.Error{jsonapi.ErrServiceUnavailable("")}, 503, "service_unavailable"},
		{"empty", nil, 500, "internal_error"},
		{"bad status", []jsonapi.Error{{Status: "abc", Code: "weird"}}, 500, "weird"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			jsonapi.WriteError(w, tt.errs...)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var doc jsonapi.Document
			if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(doc.Errors) != 1 || doc.Errors[0].Code != tt.wantCode {
				t.Errorf("errors = %+v, want code %q", doc.Errors, tt.wantCode)
			}
		})
	}
}

func TestErrorBuilder(t *testing.T) {
	e := jsonapi.NewError(409, "conflict", "Conflict").
		Detailf("client %s", "Asha").
		Parameter("name").
		Meta("family", "home_care").
		Build()

	if e.StatusCode() != 409 || e.Detail != "client Asha" {
		t.Errorf("error = %+v", e)
	}
	if e.Source == nil || e.Source.Parameter != "name" {
		t.Errorf("Source = %+v, want parameter name", e.Source)
	}
	if e.Meta["family"] != "home_care" {
		t.Errorf("Meta = %v", e.Meta)
	}
}
