package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/wandertours/apiserver/types"
)

type contextKey string

const contextPrincipalKey contextKey = "principal"

// WithPrincipal attaches the authenticated user to the request context.
func WithPrincipal(ctx context.Context, user types.User) context.Context {
	return context.WithValue(ctx, contextPrincipalKey, user)
}

// PrincipalFrom returns the authenticated user attached by the gate.
func PrincipalFrom(ctx context.Context) (types.User, bool) {
	user, ok := ctx.Value(contextPrincipalKey).(types.User)
	return user, ok
}

// envelope is the success response shape: {status, results?, token?, data}.
type envelope struct {
	Status  string `json:"status"`
	Results *int   `json:"results,omitempty"`
	Token   string `json:"token,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// writeData wraps a single record: {status:"success", data:{data:record}}.
func writeData(w http.ResponseWriter, status int, record any) {
	writeJSON(w, status, envelope{
		Status: "success",
		Data:   map[string]any{"data": record},
	})
}

// writeList wraps a result page with its count.
func writeList(w http.ResponseWriter, records any, count int) {
	writeJSON(w, http.StatusOK, envelope{
		Status:  "success",
		Results: &count,
		Data:    map[string]any{"data": records},
	})
}

// decodeBody reads a JSON body into a field map, dropping identifier keys a
// client must not set.
func decodeBody(r *http.Request) (map[string]any, error) {
	doc := map[string]any{}
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		return nil, err
	}
	delete(doc, "id")
	delete(doc, "_id")
	return doc, nil
}
