package server

import (
	"encoding/json"
	"net/http"

	"github.com/teranos/quotesearch/errors"
)

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return errors.Wrap(json.NewEncoder(w).Encode(body), "failed to encode response")
}

func writeError(w http.ResponseWriter, status int, message string) {
	_ = writeJSON(w, status, ErrorResponse{Error: message})
}

// readJSON decodes the request body into v and answers 400 itself on failure
func readJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	return err
}

// shortID keeps log lines readable; job ids are UUIDs
func shortID(id string) string {
	const n = 8
	if len(id) <= n {
		return id
	}
	return id[:n]
}
