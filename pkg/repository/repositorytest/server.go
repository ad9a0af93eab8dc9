// Package repositorytest provides an in-process fake of the MediScan service
// for tests. It mirrors the MediScan backend's routes and response shapes:
// token in the query string, "_id"/"file" keys, bare result payloads from
// uploads and FastAPI style {"detail": ...} errors.
package repositorytest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// GlucoseResult is the default analysis returned for uploads.
const GlucoseResult = `{
	"structured": {
		"meta": {"patient_name": "Jane Doe", "hospital": "City Lab"},
		"tests": [{"name": "Glucose", "value": "110", "unit": "mg/dL", "referenceRange": "70-100", "status": "High"}]
	},
	"analysis": {"summary": "Elevated glucose."}
}`

// Request is one request observed by the server.
type Request struct {
	Method    string
	Path      string
	Pattern   string
	Token     string
	RequestID string
	UserAgent string
	// Upload fields are set for POST /upload.
	FileName    string
	ContentType string
	Size        int64
}

type user struct {
	name     string
	password string
}

type storedReport struct {
	ID        string          `json:"_id"`
	Email     string          `json:"email"`
	File      string          `json:"file"`
	Result    json.RawMessage `json:"result"`
	CreatedAt string          `json:"createdAt"`
}

// Server is a fake MediScan backend.
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	users        map[string]user
	tokens       map[string]string
	reports      []*storedReport
	failures     map[string][]int
	requests     []Request
	uploadResult json.RawMessage
	returnDetail bool
	delay        time.Duration
	nextID       int
}

// NewServer starts a fake backend. It is closed when the test ends.
func NewServer(t interface{ Cleanup(func()) }) *Server {
	s := &Server{
		users:        make(map[string]user),
		tokens:       make(map[string]string),
		failures:     make(map[string][]int),
		uploadResult: json.RawMessage(GlucoseResult),
	}

	r := chi.NewRouter()
	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", s.handle("/auth/signup", false, s.signup))
		r.Post("/login", s.handle("/auth/login", false, s.login))
	})
	r.Post("/upload", s.handle("/upload", true, s.upload))
	r.Get("/history", s.handle("/history", true, s.history))
	r.Delete("/history", s.handle("/history", true, s.clearHistory))
	r.Get("/report/{id}", s.handle("/report/{id}", true, s.getReport))
	r.Delete("/report/{id}", s.handle("/report/{id}", true, s.deleteReport))

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// AddUser registers an account and returns a valid token for it.
func (s *Server) AddUser(name, email, password string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[email] = user{name: name, password: password}
	return s.issueLocked(email)
}

// SeedReport stores a report for the token's user and returns its id.
// result is raw JSON and may be "null" to simulate a report without result.
func (s *Server) SeedReport(token, file, result string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.tokens[token]
	if !ok {
		panic(fmt.Sprintf("repositorytest: unknown token %q", token))
	}
	return s.storeLocked(email, file, json.RawMessage(result))
}

// ReportIDs returns the ids owned by the token's user, newest first.
func (s *Server) ReportIDs(token string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, rep := range s.ownedLocked(s.tokens[token]) {
		ids = append(ids, rep.ID)
	}
	return ids
}

// Fail makes the next request matching method and route pattern fail with
// status. Several calls queue several failures.
func (s *Server) Fail(method, pattern string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + pattern
	s.failures[key] = append(s.failures[key], status)
}

// SetUploadResult changes the analysis returned for subsequent uploads.
func (s *Server) SetUploadResult(result string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadResult = json.RawMessage(result)
}

// SetReturnDetail makes uploads answer with the stored report instead of
// the bare result.
func (s *Server) SetReturnDetail(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.returnDetail = v
}

// SetDelay delays every response, honoring client cancellation.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Requests returns the requests observed so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// CountRequests returns how many requests matched method and pattern.
func (s *Server) CountRequests(method, pattern string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && r.Pattern == pattern {
			n++
		}
	}
	return n
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, email string, rec *Request)

// handle wraps a route with recording, delay, failure injection and, for
// protected routes, token checks.
func (s *Server) handle(pattern string, protected bool, h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		rec := Request{
			Method:    r.Method,
			Path:      r.URL.Path,
			Pattern:   pattern,
			Token:     token,
			RequestID: r.Header.Get("X-Request-Id"),
			UserAgent: r.Header.Get("User-Agent"),
		}

		s.mu.Lock()
		delay := s.delay
		key := r.Method + " " + pattern
		var failStatus int
		if queued := s.failures[key]; len(queued) > 0 {
			failStatus = queued[0]
			s.failures[key] = queued[1:]
		}
		email, authed := s.tokens[token]
		s.mu.Unlock()

		defer func() {
			s.mu.Lock()
			s.requests = append(s.requests, rec)
			s.mu.Unlock()
		}()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if failStatus != 0 {
			writeDetail(w, failStatus, http.StatusText(failStatus))
			return
		}
		if protected && !authed {
			writeDetail(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		h(w, r, email, &rec)
	}
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request, _ string, _ *Request) {
	var body struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[body.Email]; exists {
		writeDetail(w, http.StatusBadRequest, "Email already exists")
		return
	}
	s.users[body.Email] = user{name: body.Name, password: body.Password}
	writeJSON(w, http.StatusOK, map[string]string{"token": s.issueLocked(body.Email)})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request, _ string, _ *Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[body.Email]
	if !ok || u.password != body.Password {
		writeDetail(w, http.StatusBadRequest, "Invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": s.issueLocked(body.Email)})
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request, email string, rec *Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid multipart body")
		return
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "field required")
		return
	}
	defer f.Close()
	n, _ := io.Copy(io.Discard, f)
	rec.FileName = hdr.Filename
	rec.ContentType = hdr.Header.Get("Content-Type")
	rec.Size = n

	s.mu.Lock()
	id := s.storeLocked(email, hdr.Filename, s.uploadResult)
	result := s.uploadResult
	detail := s.returnDetail
	var stored *storedReport
	for _, rep := range s.reports {
		if rep.ID == id {
			stored = rep
		}
	}
	s.mu.Unlock()

	if detail {
		writeJSON(w, http.StatusOK, stored)
		return
	}
	writeRaw(w, http.StatusOK, result)
}

func (s *Server) history(w http.ResponseWriter, _ *http.Request, email string, _ *Request) {
	s.mu.Lock()
	items := s.ownedLocked(email)
	s.mu.Unlock()
	if items == nil {
		items = []*storedReport{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request, email string, _ *Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rep := range s.reports {
		if rep.ID == id && rep.Email == email {
			writeJSON(w, http.StatusOK, rep)
			return
		}
	}
	writeDetail(w, http.StatusNotFound, "Report not found")
}

func (s *Server) deleteReport(w http.ResponseWriter, r *http.Request, email string, _ *Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, rep := range s.reports {
		if rep.ID == id && rep.Email == email {
			s.reports = append(s.reports[:i], s.reports[i+1:]...)
			writeJSON(w, http.StatusOK, map[string]string{"message": "Report deleted"})
			return
		}
	}
	writeDetail(w, http.StatusNotFound, "Report not found")
}

func (s *Server) clearHistory(w http.ResponseWriter, _ *http.Request, email string, _ *Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.reports[:0]
	for _, rep := range s.reports {
		if rep.Email != email {
			kept = append(kept, rep)
		}
	}
	s.reports = kept
	writeJSON(w, http.StatusOK, map[string]string{"message": "History cleared"})
}

func (s *Server) issueLocked(email string) string {
	token := "tok-" + uuid.NewString()
	s.tokens[token] = email
	return token
}

func (s *Server) storeLocked(email, file string, result json.RawMessage) string {
	s.nextID++
	rep := &storedReport{
		ID:        fmt.Sprintf("%024x", s.nextID),
		Email:     email,
		File:      file,
		Result:    result,
		CreatedAt: time.Now().UTC().Format("2006-01-02T15:04:05.000000"),
	}
	s.reports = append(s.reports, rep)
	return rep.ID
}

// ownedLocked returns the user's reports newest first, like the reference
// backend's sort on _id descending.
func (s *Server) ownedLocked(email string) []*storedReport {
	var out []*storedReport
	for i := len(s.reports) - 1; i >= 0; i-- {
		if s.reports[i].Email == email {
			out = append(out, s.reports[i])
		}
	}
	return out
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeRaw(w, status, body)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
