package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/bryan-buckman/chanwidget/internal/widget"
)

const maxWidgetBody = 4 << 10

// --- Page Handlers ---

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	client := uuid.NewString()
	if s.scheduler != nil {
		idle := !s.scheduler.Visible()
		s.scheduler.SetVisible(client, true)
		if idle {
			s.renderer.RefreshAll(r.Context(), false)
		}
	}

	page := s.renderer.Page(s.title(), s.opts.Language)
	page.Client = client
	var buf bytes.Buffer
	if err := s.templates.WritePage(&buf, page); err != nil {
		log.WithError(err).Error("Template error")
		http.Error(w, "Render error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (s *Server) handleContainer(w http.ResponseWriter, r *http.Request) {
	s.renderContainer(w, chi.URLParam(r, "container"))
}

// --- Widget Actions ---

func (s *Server) handleRefreshAll(w http.ResponseWriter, r *http.Request) {
	s.renderer.RefreshAll(r.Context(), true)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRefreshChannel(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")
	id, ok := s.renderer.ContainerOf(channel)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Unknown channel"})
		return
	}
	s.renderer.Refresh(r.Context(), channel, id, true)
	s.renderContainer(w, id)
}

// handleVisibility records whether a page is shown. A page that comes back
// into view gets its channels refreshed before the response.
func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Client  string `json:"client"`
		Visible bool   `json:"visible"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Client == "" {
		req.Client = clientIP(r)
	}
	refreshed := false
	if s.scheduler != nil && s.scheduler.SetVisible(req.Client, req.Visible) {
		s.renderer.RefreshAll(r.Context(), false)
		refreshed = true
	}
	writeJSON(w, http.StatusOK, map[string]bool{"visible": req.Visible, "refreshed": refreshed})
}

// handlePull force-refreshes every channel for a pull-down gesture and
// answers once the refresh is done.
func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	var g widget.Gesture
	if !decodeBody(w, r, &g) {
		return
	}
	refreshed := g.IsPull()
	if refreshed {
		s.renderer.RefreshAll(r.Context(), true)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"refreshed": refreshed})
}

func (s *Server) handleTranslateMessage(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")
	err := s.renderer.ToggleMessage(r.Context(), channel, chi.URLParam(r, "id"), s.lang(r))
	s.afterToggle(w, channel, err)
}

func (s *Server) handleTranslateChannel(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")
	err := s.renderer.ToggleChannel(r.Context(), channel, s.lang(r))
	s.afterToggle(w, channel, err)
}

// --- Helpers ---

func (s *Server) afterToggle(w http.ResponseWriter, channel string, err error) {
	switch {
	case errors.Is(err, widget.ErrInvalidLanguage):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid language"})
		return
	case errors.Is(err, widget.ErrUnknownChannel), errors.Is(err, widget.ErrUnknownMessage):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Message not found"})
		return
	case err != nil:
		log.WithError(err).WithField("channel", channel).Warn("Translation toggle interrupted")
	}
	id, _ := s.renderer.ContainerOf(channel)
	s.renderContainer(w, id)
}

func (s *Server) renderContainer(w http.ResponseWriter, id string) {
	c, ok := s.renderer.Container(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Unknown container"})
		return
	}
	var buf bytes.Buffer
	if err := s.templates.WriteContainer(&buf, c); err != nil {
		log.WithError(err).Error("Template error")
		http.Error(w, "Render error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (s *Server) lang(r *http.Request) string {
	if lang := r.URL.Query().Get("lang"); lang != "" {
		return lang
	}
	return s.opts.Language
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWidgetBody)).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request"})
		return false
	}
	return true
}
