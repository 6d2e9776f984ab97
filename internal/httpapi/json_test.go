package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(`{"known":1,"mystery":2}`)))
	var dest struct {
		Known int `json:"known"`
	}
	err := DecodeJSON(req, &dest)
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
	var reqErr RequestError
	if re, ok := err.(RequestError); ok {
		reqErr = re
	} else {
		t.Fatalf("expected RequestError, got %T", err)
	}
	if reqErr.StatusCode() != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", reqErr.StatusCode())
	}
}

func TestDecodeJSONEmptyBodyIsOK(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(nil))
	var dest struct{}
	if err := DecodeJSON(req, &dest); err != nil {
		t.Fatalf("expected no error for empty body, got %v", err)
	}
}

func TestWriteErrorUsesRequestErrorCode(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteRequestError(rec, NotFound("session missing"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var body errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error.Code != "not_found" || body.Error.Message != "session missing" {
		t.Fatalf("unexpected error body: %+v", body)
	}
}

func TestWriteMethodNotAllowedSetsAllowHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	WriteMethodNotAllowed(rec, req, http.MethodPost)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if rec.Header().Get("Allow") != http.MethodPost {
		t.Fatalf("expected Allow header %q, got %q", http.MethodPost, rec.Header().Get("Allow"))
	}
}
