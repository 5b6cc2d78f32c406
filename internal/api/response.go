package api

import (
	"encoding/json"
	"net/http"
)

// Error codes for responses written by the root router. Handler packages
// define their own codes next to the errors they map.
const (
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
)

// Error is the body of a failed response.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response is the standard envelope: {"data": ...} or {"error": {...}}.
type Response struct {
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// JSONError writes an error envelope with status.
func JSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{Error: &Error{Code: code, Message: message}})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	JSONError(w, http.StatusNotFound, ErrCodeNotFound, "no route for "+r.URL.Path)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	JSONError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, r.Method+" is not allowed on "+r.URL.Path)
}
