// Package remotetest runs an in-process fake of the review server, the
// build snapshot feed and the allow-list document for tests.
package remotetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/omnirom/omnigerrit/internal/models"
)

const magic = ")]}'\n"

const gerritTimeLayout = "2006-01-02 15:04:05.000000000"

// Server is a fake of every remote the timeline talks to.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	changes   []models.Change
	commits   map[string]models.CommitInfo
	branches  map[string][]models.Branch
	builds    map[string]map[string][]models.Build // root -> device -> builds
	allowList string
	failures  map[string][]int // path prefix -> queued statuses (0 = drop connection)
	requests  []*url.URL
	gate      chan struct{}
}

// NewServer starts a fake server; it is closed when the test ends.
func NewServer(t interface {
	Helper()
	Cleanup(func())
}) *Server {
	t.Helper()
	s := &Server{
		commits:  make(map[string]models.CommitInfo),
		branches: make(map[string][]models.Branch),
		builds:   make(map[string]map[string][]models.Build),
		failures: make(map[string][]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// AddChanges appends changes; they are served in the given order.
func (s *Server) AddChanges(changes ...models.Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes = append(s.changes, changes...)
}

// SetCommit sets the commit returned for a change's revisions.
func (s *Server) SetCommit(changeID string, commit models.CommitInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits[changeID] = commit
}

// SetBranches sets the branches of a project.
func (s *Server) SetBranches(project string, branches ...models.Branch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.branches[project] = branches
}

// AddBuilds publishes builds for device under the snapshot root.
func (s *Server) AddBuilds(root, device string, builds ...models.Build) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.builds[root] == nil {
		s.builds[root] = make(map[string][]models.Build)
	}
	s.builds[root][device] = append(s.builds[root][device], builds...)
}

// SetAllowList sets the XML allow-list document body.
func (s *Server) SetAllowList(doc string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowList = doc
}

// FailNext makes the next request whose path starts with prefix fail with
// status. Status 0 drops the connection to simulate a network error.
func (s *Server) FailNext(prefix string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[prefix] = append(s.failures[prefix], status)
}

// Hold blocks change-list requests until the returned release func is called.
func (s *Server) Hold() (release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gate := make(chan struct{})
	s.gate = gate
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.gate = nil
			s.mu.Unlock()
			close(gate)
		})
	}
}

// Requests returns the URLs of all requests received so far.
func (s *Server) Requests() []*url.URL {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*url.URL, len(s.requests))
	copy(out, s.requests)
	return out
}

// ChangeRequests returns the raw queries of change-list requests.
func (s *Server) ChangeRequests() []string {
	var out []string
	for _, u := range s.Requests() {
		if u.Path == "/changes/" {
			out = append(out, u.RawQuery)
		}
	}
	return out
}

// AllowListURL is the URL at which the allow-list document is served.
func (s *Server) AllowListURL() string {
	return s.URL + "/allowlist.xml"
}

func (s *Server) takeFailure(path string) (int, bool) {
	for prefix, queue := range s.failures {
		if strings.HasPrefix(path, prefix) && len(queue) > 0 {
			s.failures[prefix] = queue[1:]
			return queue[0], true
		}
	}
	return 0, false
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	u := *r.URL
	s.requests = append(s.requests, &u)
	status, fail := s.takeFailure(r.URL.Path)
	gate := s.gate
	s.mu.Unlock()

	if fail {
		if status == 0 {
			dropConnection(w)
			return
		}
		http.Error(w, "injected failure", status)
		return
	}

	path := r.URL.Path
	switch {
	case path == "/changes/":
		if gate != nil {
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		}
		s.serveChanges(w, r)
	case strings.HasPrefix(path, "/changes/"):
		s.serveChange(w, r)
	case strings.HasPrefix(path, "/projects/") && strings.HasSuffix(path, "/branches/"):
		s.serveBranches(w, r)
	case path == "/config/server/version":
		writeGerritJSON(w, "3.8.0")
	case strings.HasSuffix(path, "/ota_info.php"):
		s.serveBuilds(w, r)
	case path == "/allowlist.xml":
		s.mu.Lock()
		doc := s.allowList
		s.mu.Unlock()
		if doc == "" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, doc)
	default:
		http.NotFound(w, r)
	}
}

// dropConnection promises a body and hangs up halfway through it, so the
// client sees a transport error after the response has started.
func dropConnection(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "cannot hijack", http.StatusInternalServerError)
		return
	}
	conn, buf, err := hj.Hijack()
	if err != nil {
		return
	}
	defer conn.Close()
	buf.WriteString("HTTP/1.1 200 OK\r\nContent-Type: application/json\r\nContent-Length: 1024\r\n\r\n)]}'\n[")
	buf.Flush()
}

func (s *Server) serveChanges(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := strconv.Atoi(q.Get("n"))
	if err != nil || limit <= 0 {
		http.Error(w, "bad n", http.StatusBadRequest)
		return
	}
	offset, _ := strconv.Atoi(q.Get("S"))

	s.mu.Lock()
	all := s.changes
	s.mu.Unlock()

	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}

	page := make([]map[string]any, 0, end-offset)
	for i := offset; i < end; i++ {
		page = append(page, changeJSON(all[i]))
	}
	if end < len(all) && len(page) > 0 {
		page[len(page)-1]["_more_changes"] = true
	}
	writeGerritJSON(w, page)
}

func (s *Server) findChange(id string) (models.Change, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.changes {
		if c.ID == id || c.ChangeID == id {
			return c, true
		}
	}
	return models.Change{}, false
}

// serveChange handles /changes/{id}/detail, /topic and /revisions/{rev}/commit.
func (s *Server) serveChange(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.EscapedPath(), "/changes/")
	parts := strings.Split(rest, "/")
	id, err := url.PathUnescape(parts[0])
	if err != nil || len(parts) < 2 {
		http.NotFound(w, r)
		return
	}

	c, ok := s.findChange(id)
	if !ok {
		http.Error(w, "Not found: "+id, http.StatusNotFound)
		return
	}

	switch {
	case parts[1] == "detail":
		writeGerritJSON(w, changeJSON(c))
	case parts[1] == "topic":
		if c.Topic == "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeGerritJSON(w, c.Topic)
	case parts[1] == "revisions" && len(parts) == 4 && parts[3] == "commit":
		s.mu.Lock()
		commit, ok := s.commits[c.ID]
		s.mu.Unlock()
		if !ok {
			commit = models.CommitInfo{Commit: c.RevisionID, Subject: c.Subject, Message: c.Subject + "\n"}
		}
		writeGerritJSON(w, commit)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) serveBranches(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.EscapedPath(), "/projects/")
	project, err := url.PathUnescape(strings.TrimSuffix(rest, "/branches/"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	s.mu.Lock()
	branches, ok := s.branches[project]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "Not found: "+project, http.StatusNotFound)
		return
	}
	writeGerritJSON(w, branches)
}

func (s *Server) serveBuilds(w http.ResponseWriter, r *http.Request) {
	root := strings.Trim(strings.TrimSuffix(r.URL.Path, "ota_info.php"), "/")
	s.mu.Lock()
	devices, ok := s.builds[root]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(devices)
}

func changeJSON(c models.Change) map[string]any {
	m := map[string]any{
		"id":        c.ID,
		"project":   c.Project,
		"branch":    c.Branch,
		"change_id": c.ChangeID,
		"subject":   c.Subject,
		"status":    c.Status,
		"created":   c.Created.UTC().Format(gerritTimeLayout),
		"updated":   c.Updated.UTC().Format(gerritTimeLayout),
		"_number":   c.Number,
		"owner": map[string]string{
			"name":     c.Owner.Name,
			"email":    c.Owner.Email,
			"username": c.Owner.Username,
		},
	}
	if c.Topic != "" {
		m["topic"] = c.Topic
	}
	if c.RevisionID != "" {
		m["current_revision"] = c.RevisionID
	}
	return m
}

func writeGerritJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, magic)
	w.Write(data)
}

// Change builds a merged change fixture updated at unix second ts.
func Change(id string, project string, ts int64) models.Change {
	at := time.Unix(ts, 0).UTC()
	return models.Change{
		ID:         id,
		ChangeID:   "I" + id,
		Project:    project,
		Branch:     "android-14.0",
		Subject:    "change " + id,
		Status:     "MERGED",
		Created:    at,
		Updated:    at,
		Owner:      models.Account{Name: "Dev", Username: "dev"},
		RevisionID: "rev-" + id,
	}
}
