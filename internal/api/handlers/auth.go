package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	pkgauth "github.com/matiasleandrokruk/notepilot/pkg/auth"
)

// AuthHandler exchanges the shared API token for a Bearer JWT. The shared
// token is the only long-lived secret a client holds; everything under
// /api/v1 requires the short-lived JWT minted here.
type AuthHandler struct {
	apiToken  string
	jwtSecret []byte
}

func NewAuthHandler(apiToken string, jwtSecret []byte) *AuthHandler {
	return &AuthHandler{apiToken: apiToken, jwtSecret: jwtSecret}
}

type tokenRequest struct {
	Token string `json:"token"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	if h.apiToken == "" {
		writeError(w, http.StatusServiceUnavailable, "token exchange disabled: no API token configured")
		return
	}

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.Token), []byte(h.apiToken)) != 1 {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	jwt, err := pkgauth.GenerateJWT(h.jwtSecret, "local", pkgauth.DefaultTokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to mint token")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     jwt,
		ExpiresIn: int(pkgauth.DefaultTokenTTL.Seconds()),
	})
}
