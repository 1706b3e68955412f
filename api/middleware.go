package api

import (
	"encoding/json"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"skimo-var/core/authz"
)

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if s.logger != nil {
					s.logger.Errorf("PANIC %s %s: %v\n%s", r.Method, r.URL.Path, rec, string(debug.Stack()))
				}
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if s.logger != nil {
			s.logger.Printf("REQ %s %s", r.Method, r.URL.Path)
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if s.logger != nil {
			actor := "-"
			if a, ok := authz.ActorFrom(r.Context()); ok {
				actor = a.Name
			}
			s.logger.Printf("RESP %s %s actor=%s status=%d dur=%s", r.Method, r.URL.Path, actor, rec.status, time.Since(start))
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps the SSE stream working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// withActor resolves the bearer key into an actor. Capability checks live
// in the engines; this layer only establishes who is calling.
func (s *Server) withActor(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		actor, ok := s.keys.Resolve(token)
		if !ok {
			if s.logger != nil {
				s.logger.Printf("AUTH fail %s %s", r.Method, r.URL.Path)
			}
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid access key")
			return
		}
		ctx := authz.WithActor(r.Context(), *actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}

