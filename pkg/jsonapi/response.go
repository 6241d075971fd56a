package jsonapi

import (
	"encoding/json"
	"net/http"
)

// WriteDocument writes doc with the JSON:API content type.
func WriteDocument(w http.ResponseWriter, status int, doc Document) {
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(doc)
}

// WriteData writes a success document.
func WriteData(w http.ResponseWriter, status int, data any, meta Meta) {
	WriteDocument(w, status, Document{Data: data, Meta: meta})
}

// WriteError writes an error document.
// The HTTP status is derived from the first error's status field.
func WriteError(w http.ResponseWriter, errs ...Error) {
	if len(errs) == 0 {
		errs = []Error{ErrInternal("")}
	}
	status := errs[0].StatusCode()
	if status == 0 {
		status = http.StatusInternalServerError
	}
	WriteDocument(w, status, Document{Errors: errs})
}
