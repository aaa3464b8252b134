package apperr

import (
	"encoding/json"
	"net/http"
)

// Body is the JSON shape of every HTTP error response.
type Body struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// Write sends err as a JSON error response with the status of its kind.
func Write(w http.ResponseWriter, err error) {
	kind := KindOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(kind.Status())
	json.NewEncoder(w).Encode(Body{Error: Message(err), Kind: kind.String()})
}
