package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/omnirom/omnigerrit/internal/core"
	"github.com/omnirom/omnigerrit/internal/models"
	"github.com/omnirom/omnigerrit/internal/remote"
)

// entryResponse is one timeline entry tagged with its kind.
type entryResponse struct {
	Kind string `json:"kind"` // "change" or "build"
	models.Change
}

type timelineResponse struct {
	Session   string          `json:"session"`
	Query     string          `json:"query"`
	Pages     int             `json:"pages"`
	Offset    int             `json:"offset"`
	Exhausted bool            `json:"exhausted"`
	Entries   []entryResponse `json:"entries"`
	// Error is set when a later page of the request failed; the entries of
	// the pages before it are still returned.
	Error string `json:"error,omitempty"`
}

func toEntries(changes []models.Change) []entryResponse {
	out := make([]entryResponse, len(changes))
	for i, c := range changes {
		kind := "change"
		if c.IsBuild() {
			kind = "build"
		}
		out[i] = entryResponse{Kind: kind, Change: c}
	}
	return out
}

// parseFilter reads a filter from query parameters: branch, project, q,
// after, status and project_filter.
func parseFilter(q url.Values) (models.FilterState, error) {
	f := models.DefaultFilter()
	f.Branch = q.Get("branch")
	f.Project = q.Get("project")
	f.SearchText = q.Get("q")

	status, err := models.ParseStatus(q.Get("status"))
	if err != nil {
		return f, err
	}
	f.Status = status

	if raw := q.Get("after"); raw != "" {
		at, err := core.ParseAfter(raw)
		if err != nil {
			return f, err
		}
		f = f.WithAfter(at)
	}
	if raw := q.Get("project_filter"); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return f, fmt.Errorf("invalid project_filter '%s'", raw)
		}
		f.ProjectFilter = enabled
	}
	return f, nil
}

func (s *Server) parsePages(q url.Values) (int, error) {
	raw := q.Get("pages")
	if raw == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid pages '%s'", raw)
	}
	if n > s.cfg.MaxPages {
		n = s.cfg.MaxPages
	}
	return n, nil
}

// GET /api/v1/timeline starts a session and returns its first pages.
func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	pages, err := s.parsePages(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	sess, sctx, err := s.newSession(f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	s.servePages(w, r, sess, sctx, pages)
}

// GET /api/v1/timeline/{session} continues a session.
func (s *Server) handleTimelineNext(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session")
	sess, sctx, ok := s.sessions.get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "session_not_found", "session '"+id+"' not found or expired")
		return
	}
	pages, err := s.parsePages(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	s.servePages(w, r, sess, sctx, pages)
}

// DELETE /api/v1/timeline/{session}
func (s *Server) handleTimelineDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session")
	if !s.sessions.remove(id) {
		writeError(w, http.StatusNotFound, "session_not_found", "session '"+id+"' not found or expired")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// servePages builds up to pages pages of sess. sctx is cancelled when the
// session leaves the store; pages built for a dropped session are discarded.
func (s *Server) servePages(w http.ResponseWriter, r *http.Request, sess *core.Session, sctx context.Context, pages int) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(sctx, cancel)
	defer stop()

	resp := timelineResponse{Session: sess.ID(), Query: sess.Query(), Entries: []entryResponse{}}

	for i := 0; i < pages; i++ {
		page, err := sess.NextPage(ctx)
		if sctx.Err() != nil {
			writeError(w, http.StatusNotFound, "session_not_found", "session '"+sess.ID()+"' was invalidated")
			return
		}
		if err != nil {
			if i == 0 {
				s.log.Warn("timeline page failed", "session", sess.ID(), "error", err, "request_id", requestID(r))
				if sess.Pages() == 0 {
					// The client never saw this session.
					s.sessions.remove(sess.ID())
				}
				writeRemoteError(w, err)
				return
			}
			resp.Error = err.Error()
			break
		}
		resp.Entries = append(resp.Entries, toEntries(page.Entries)...)
		if page.Exhausted {
			break
		}
	}

	cursor := sess.Cursor()
	resp.Pages = sess.Pages()
	resp.Offset = cursor.Offset
	resp.Exhausted = cursor.Exhausted
	if resp.Exhausted {
		s.sessions.remove(sess.ID())
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /api/v1/changes/{id}?revision=
func (s *Server) handleChange(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	detail, err := s.backend.FetchRevisionDetail(r.Context(), id, r.URL.Query().Get("revision"))
	if err != nil {
		writeRemoteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// GET /api/v1/builds?after= lists the device's builds, newest first.
func (s *Server) handleBuilds(w http.ResponseWriter, r *http.Request) {
	var after *time.Time
	if raw := r.URL.Query().Get("after"); raw != "" {
		at, err := core.ParseAfter(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		after = &at
	}

	builds, err := s.backend.FetchBuildSnapshot(r.Context(), s.cfg.Device)
	if err != nil {
		writeRemoteError(w, err)
		return
	}

	index := core.NewBuildIndex(builds, after)
	entries := make([]models.Change, 0, index.Len())
	for _, e := range index.Drain() {
		entries = append(entries, models.NewBuildChange(e.Build))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device": s.cfg.Device,
		"builds": toEntries(entries),
	})
}

// GET /api/v1/projects/{project}/branches
func (s *Server) handleBranches(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")
	branches, err := s.backend.ListBranches(r.Context(), project)
	if err != nil {
		writeRemoteError(w, err)
		return
	}

	names := make([]string, 0, len(branches))
	for _, b := range branches {
		if strings.HasPrefix(b.Ref, "refs/heads/") {
			names = append(names, b.Name())
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"project":  project,
		"branches": names,
	})
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.Ping(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("not ready: review server unreachable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// writeRemoteError maps remote failures onto API status codes.
func writeRemoteError(w http.ResponseWriter, err error) {
	var se *remote.ServerError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "canceled", err.Error())
	case remote.IsTransient(err):
		writeError(w, http.StatusBadGateway, "upstream_unavailable", err.Error())
	case errors.As(err, &se) && se.Status == http.StatusNotFound:
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.As(err, &se):
		writeError(w, http.StatusBadGateway, "upstream_error", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
