package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/hlog"
)

func (h *handler) install(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	redirect := h.svc.InstallURL(state)
	hlog.FromRequest(r).Info().Msg("redirecting to slack oauth")
	http.Redirect(w, r, redirect, http.StatusFound)
}

func (h *handler) callback(w http.ResponseWriter, r *http.Request) {
	logger := hlog.FromRequest(r)
	q := r.URL.Query()

	if e := q.Get("error"); e != "" {
		logger.Warn().Str("error", e).Msg("slack oauth denied")
		http.Error(w, "Slack authorization failed: "+e, http.StatusBadRequest)
		return
	}
	code := q.Get("code")
	if code == "" {
		http.Error(w, "Missing code", http.StatusBadRequest)
		return
	}
	// Installs started from Slack's app directory carry no cookie; only a
	// present cookie is checked.
	if c, err := r.Cookie(oauthStateCookie); err == nil {
		if c.Value != q.Get("state") {
			http.Error(w, msgOAuthStateInvalid, http.StatusBadRequest)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Path: "/", MaxAge: -1})
	}

	if _, err := h.svc.StoreAuthorization(r.Context(), code); err != nil {
		status := statusFor(err)
		msg := err.Error()
		if status == http.StatusInternalServerError {
			logger.Error().Err(err).Msg("store slack authorization")
			msg = msgInternal
		} else {
			logger.Warn().Err(err).Msg("slack oauth exchange failed")
			if status != http.StatusBadRequest {
				status = http.StatusBadGateway
			}
		}
		http.Error(w, msg, status)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(msgInstalled))
}
