// Package mock provides a canned-fixture HTTP venue for driver tests. Tests
// register fixture payloads per method and path, point a driver's endpoints
// at Server.URL and assert on the captured outbound requests.
package mock

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"

	"github.com/gorilla/mux"
)

// Request is one captured outbound call
type Request struct {
	Method string
	URL    *url.URL
	Header http.Header
	Body   []byte
}

// Server is a fixture venue
type Server struct {
	*httptest.Server
	Router *mux.Router

	mu       sync.Mutex
	captured []Request
}

// NewServer returns a running fixture venue. Callers own Close.
func NewServer() *Server {
	r := mux.NewRouter()
	s := &Server{Router: r}
	s.Server = httptest.NewServer(s.captureMiddleware(r))
	return s
}

func (s *Server) captureMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		req.Body.Close()
		s.mu.Lock()
		s.captured = append(s.captured, Request{
			Method: req.Method,
			URL:    req.URL,
			Header: req.Header.Clone(),
			Body:   body,
		})
		s.mu.Unlock()
		req.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, req)
	})
}

// HandleJSON registers a fixed JSON payload for method and path
func (s *Server) HandleJSON(method, path string, status int, payload string) {
	s.Router.HandleFunc(path, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(payload))
	}).Methods(method)
}

// HandleFunc registers a bespoke handler for method and path
func (s *Server) HandleFunc(method, path string, h http.HandlerFunc) {
	s.Router.HandleFunc(path, h).Methods(method)
}

// Requests returns all captured calls in arrival order
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.captured))
	copy(out, s.captured)
	return out
}

// LastRequest returns the most recent captured call, or nil
func (s *Server) LastRequest() *Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.captured) == 0 {
		return nil
	}
	r := s.captured[len(s.captured)-1]
	return &r
}

// Reset clears captured calls
func (s *Server) Reset() {
	s.mu.Lock()
	s.captured = nil
	s.mu.Unlock()
}
