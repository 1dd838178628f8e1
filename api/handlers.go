package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"SlackScheduler/internal/core"
	"SlackScheduler/utils"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
)

// Routes mounts the command surface. The caller mounts it under /api.
func Routes(svc *Service) chi.Router {
	h := &handler{svc: svc}
	r := chi.NewRouter()
	r.Route("/messages", func(r chi.Router) {
		r.Post("/send", h.sendNow)
		r.Post("/schedule", h.schedule)
		r.Get("/scheduled/{userID}/{teamID}", h.listScheduled)
		r.Delete("/cancel/{id}", h.cancel)
		r.Get("/channels/{userID}/{teamID}", h.listChannels)
	})
	r.Post("/credentials/{userID}/{teamID}/refresh", h.refreshCredential)
	r.Get("/auth/slack", h.install)
	r.Get("/auth/slack/callback", h.callback)
	return r
}

type handler struct {
	svc *Service
}

func writeJSON(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func statusFor(err error) int {
	switch core.Kind(err) {
	case "validation", "no_refresh_token", "rejected":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "already_terminal":
		return http.StatusConflict
	case "credential_expired", "auth_expired":
		return http.StatusUnauthorized
	case "transient":
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := Response{Error: err.Error(), Kind: core.Kind(err)}
	if status == http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
		resp.Error = msgInternal
	}
	writeJSON(w, status, resp)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return core.Invalid("malformed JSON body")
	}
	return nil
}

func ownerParam(r *http.Request) core.Owner {
	return core.Owner{UserID: chi.URLParam(r, "userID"), TeamID: chi.URLParam(r, "teamID")}
}

func (h *handler) sendNow(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.svc.SendNow(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: msgSent, Data: SendResult{Channel: req.ChannelID, Ts: res.Ts}})
}

func (h *handler) schedule(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	m, err := req.toNewMessage()
	if err != nil {
		writeError(w, r, err)
		return
	}
	msg, err := h.svc.Schedule(r.Context(), m)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: msgScheduled, Data: msg})
}

func (req ScheduleRequest) toNewMessage() (core.NewMessage, error) {
	m := core.NewMessage{Owner: req.owner(), ChannelID: req.ChannelID, Text: req.Text}
	if strings.TrimSpace(req.ScheduledFor) == "" {
		// Left zero so validation reports it with the other missing fields.
		return m, nil
	}
	loc := time.UTC
	if req.Timezone != "" {
		l, err := time.LoadLocation(req.Timezone)
		if err != nil {
			return m, core.Invalid("unknown timezone " + strconv.Quote(req.Timezone))
		}
		loc = l
	}
	at, err := utils.ParseScheduledFor(req.ScheduledFor, loc)
	if err != nil {
		return m, core.Invalid(err.Error())
	}
	m.ScheduledFor = at
	return m, nil
}

func (h *handler) listScheduled(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.svc.List(r.Context(), ownerParam(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: msgs})
}

func (h *handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, core.Invalid("invalid message id"))
		return
	}

	err = h.svc.Cancel(r.Context(), id)
	var te *core.TerminalError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, Response{Success: true, Message: msgCancelled})
	case errors.As(err, &te):
		writeJSON(w, http.StatusConflict, Response{Error: cancelConflictMessage(te.State), Kind: core.Kind(err), State: te.State})
	default:
		writeError(w, r, err)
	}
}

func cancelConflictMessage(s core.State) string {
	switch s {
	case core.StateSent:
		return msgAlreadySent
	case core.StateCancelled:
		return msgAlreadyCancelled
	}
	return msgAlreadyFailed
}

func (h *handler) listChannels(w http.ResponseWriter, r *http.Request) {
	chans, err := h.svc.ListChannels(r.Context(), ownerParam(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: chans})
}

func (h *handler) refreshCredential(w http.ResponseWriter, r *http.Request) {
	cred, err := h.svc.RefreshCredential(r.Context(), ownerParam(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: msgRefreshed, Data: cred})
}
