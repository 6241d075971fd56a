// Package jsonapi writes JSON:API style response documents.
// Success bodies carry "data" and optional "meta"; failures carry "errors".
package jsonapi

// Document is a top-level response document.
type Document struct {
	Data   any     `json:"data,omitempty"`
	Errors []Error `json:"errors,omitempty"`
	Meta   Meta    `json:"meta,omitempty"`
}

// Error is a JSON:API error object.
type Error struct {
	Status string       `json:"status"`
	Code   string       `json:"code"`
	Title  string       `json:"title"`
	Detail string       `json:"detail,omitempty"`
	Source *ErrorSource `json:"source,omitempty"`
	Meta   Meta         `json:"meta,omitempty"`
}

// ErrorSource indicates the source of an error.
type ErrorSource struct {
	Parameter string `json:"parameter,omitempty"` // query or path parameter
	Header    string `json:"header,omitempty"`
}

// Meta represents arbitrary metadata.
type Meta map[string]any

// ContentType is the JSON:API media type.
const ContentType = "application/vnd.api+json"
