package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/fetchbridge/internal/browser"
	"github.com/xkilldash9x/fetchbridge/internal/dispatch"
	"github.com/xkilldash9x/fetchbridge/internal/engine"
	"github.com/xkilldash9x/fetchbridge/internal/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if !s.armed.Load() {
		s.respondWithError(w, http.StatusServiceUnavailable, "shutdown is not available")
		return
	}
	s.respondWithJSON(w, http.StatusOK, map[string]string{"status": "shutting down"})
	s.triggerShutdown()
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	payload, ok := s.decodeBody(w, r)
	if !ok {
		return
	}
	cfg, err := dispatch.ParseSessionConfig(payload)
	if err != nil {
		s.respondWithMappedError(w, err)
		return
	}
	id, err := s.dispatcher.OpenSession(cfg, s.opener)
	if err != nil {
		s.respondWithMappedError(w, err)
		return
	}
	s.logger.Info("Session opened.", zap.String("session_id", id), zap.String("browser", cfg.Browser))
	s.respondWithJSON(w, http.StatusOK, map[string]string{"sessionId": id})
}

// Deletes are idempotent: releasing a stale handle acknowledges the
// same way as the first delete, since the end state is identical.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.dispatcher.CloseSession(id); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.respondWithMappedError(w, err)
		return
	}
	s.logger.Info("Session closed.", zap.String("session_id", id))
	s.respondWithJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	payload, ok := s.decodeBody(w, r)
	if !ok {
		return
	}
	req, err := dispatch.ParseRequest(payload)
	if err != nil {
		s.respondWithMappedError(w, err)
		return
	}
	meta, err := s.dispatcher.Execute(r.Context(), req)
	if err != nil {
		s.respondWithMappedError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, meta)
}

func (s *Server) handleResponseText(w http.ResponseWriter, r *http.Request) {
	resp, ok := s.lookupResponse(w, r)
	if !ok {
		return
	}
	text, err := resp.Text()
	if err != nil {
		s.respondWithMappedError(w, err)
		return
	}
	encoding := resp.Encoding()
	if encoding == "" {
		encoding = "utf-8"
	}
	w.Header().Set("Content-Type", "text/plain; charset="+encoding)
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, text); err != nil {
		s.logger.Debug("Failed to write text body.", zap.Error(err))
	}
}

func (s *Server) handleResponseJSON(w http.ResponseWriter, r *http.Request) {
	resp, ok := s.lookupResponse(w, r)
	if !ok {
		return
	}
	var decoded any
	if err := resp.JSON(&decoded); err != nil {
		s.respondWithMappedError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, decoded)
}

func (s *Server) handleResponseContent(w http.ResponseWriter, r *http.Request) {
	resp, ok := s.lookupResponse(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", resp.ContentType())
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	stream := resp.Stream(engine.DefaultChunkSize)
	for {
		chunk, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			s.logger.Debug("Body stream aborted.", zap.Error(err))
			return
		}
		if _, err := w.Write(chunk); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *Server) handleDeleteResponse(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.dispatcher.ReleaseResponse(id); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.respondWithMappedError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) lookupResponse(w http.ResponseWriter, r *http.Request) (*engine.Response, bool) {
	resp, err := s.dispatcher.Response(chi.URLParam(r, "id"))
	if err != nil {
		s.respondWithMappedError(w, err)
		return nil, false
	}
	return resp, true
}

// decodeBody reads an open JSON object. An empty body is treated as an
// empty object so bare POSTs work.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	payload := map[string]any{}
	err := json.NewDecoder(r.Body).Decode(&payload)
	if err != nil && !errors.Is(err, io.EOF) {
		s.respondWithError(w, http.StatusUnprocessableEntity, fmt.Sprintf("malformed request body: %v", err))
		return nil, false
	}
	return payload, true
}

// respondWithMappedError translates layer errors into wire statuses:
// stale handles are 404, bad arguments 400, undecodable bodies 422,
// everything else a 500.
func (s *Server) respondWithMappedError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.respondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, dispatch.ErrUnsupportedMethod),
		errors.Is(err, dispatch.ErrInvalidRequest),
		errors.Is(err, engine.ErrInvalidOption),
		errors.Is(err, browser.ErrInvalidOptions):
		s.respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrNotJSON):
		s.respondWithError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.logger.Error("Request failed.", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, err.Error())
	}
}

// respondWithError sends a standardized JSON error response.
func (s *Server) respondWithError(w http.ResponseWriter, statusCode int, message string) {
	s.respondWithJSON(w, statusCode, map[string]string{"error": message})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode response.", zap.Error(err))
	}
}
