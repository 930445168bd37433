package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/grovetools/agentconsole/internal/broadcast"
	"github.com/grovetools/agentconsole/internal/session"
)

const notFoundMessage = "Session not found"

type listResponse struct {
	Projects []session.Project `json:"projects"`
}

type deleteResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, listResponse{Projects: s.cache.ListProjects()})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	detail, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, r, http.StatusOK, detail)
}

func (s *Server) handleExportSession(w http.ResponseWriter, r *http.Request) {
	detail, ok := s.lookup(w, r)
	if !ok {
		return
	}

	out, err := session.Export(detail, r.URL.Query().Get("format"))
	if err != nil {
		s.log.WithError(err).Error("Failed to export session")
		s.writeJSON(w, r, http.StatusInternalServerError, errorResponse{Error: "Failed to export session"})
		return
	}

	w.Header().Set("Content-Type", out.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", out.Filename(detail.ID)))
	s.writeBody(w, r, http.StatusOK, out.Body)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	err := s.cache.DeleteSession(r.PathValue("project"), r.PathValue("session"))
	switch {
	case err == nil:
		s.writeJSON(w, r, http.StatusOK, deleteResponse{Success: true})
	case errors.Is(err, session.ErrNotFound):
		s.writeJSON(w, r, http.StatusNotFound, deleteResponse{Error: notFoundMessage})
	default:
		s.writeJSON(w, r, http.StatusInternalServerError, deleteResponse{Error: "Failed to delete session"})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.hub.Len(),
		"cache":   s.cache.Stats(),
	})
}

// handleSSE holds the connection open and lets the hub write to it until
// the client goes away or the server shuts down.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	client := broadcast.NewSSEClient(w, 0)
	defer client.Close()

	if err := client.Open(); err != nil {
		return
	}
	id, detach, err := s.hub.Attach(client)
	if err != nil {
		s.log.WithError(err).Debug("Failed to attach stream client")
		return
	}
	defer detach()
	s.log.WithField("client", id).Debug("Stream client connected")

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := client.Ping(); err != nil {
				return
			}
		}
	}
}

// lookup loads the session named by the request path, writing a 404 when it
// cannot be served.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.SessionDetail, bool) {
	detail, err := s.cache.GetSessionDetail(r.PathValue("project"), r.PathValue("session"))
	if err != nil {
		s.writeJSON(w, r, http.StatusNotFound, errorResponse{Error: notFoundMessage})
		return nil, false
	}
	return detail, true
}
