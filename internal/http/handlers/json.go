package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	httpmiddleware "github.com/wolfman30/storefront-ai/internal/http/middleware"
)

const maxAdminBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxAdminBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body required")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// orgParam returns the {orgID} path value after checking the caller's token
// is scoped to it. On failure the response has been written.
func orgParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	orgID := strings.TrimSpace(chi.URLParam(r, "orgID"))
	if orgID == "" {
		jsonError(w, "missing orgID", http.StatusBadRequest)
		return "", false
	}
	if !allowsOrg(r, orgID) {
		jsonError(w, "forbidden", http.StatusForbidden)
		return "", false
	}
	return orgID, true
}

func allowsOrg(r *http.Request, orgID string) bool {
	claims, ok := httpmiddleware.AdminClaimsFromContext(r.Context())
	return ok && claims.AllowsOrg(orgID)
}
