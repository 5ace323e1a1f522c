package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/hupe1980/recgo"
)

const maxBodyBytes = 1 << 20

// ArtistsRequest is the body of POST /v1/artists.
type ArtistsRequest struct {
	Artists  []string `json:"artists" validate:"required,min=1,max=1000,dive,required"`
	Playlist string   `json:"playlist" validate:"max=512"`
	// Update defaults to true.
	Update *bool `json:"update"`
	// Recommend defaults to true.
	Recommend *bool `json:"recommend"`
	Limit     int   `json:"limit" validate:"gte=0,lte=1000"`
}

// SimilarArtistsRequest is the body of POST /v1/artists/similar.
type SimilarArtistsRequest struct {
	Artists []string `json:"artists" validate:"required,min=1,max=100,dive,required"`
	Limit   int      `json:"limit" validate:"gte=0,lte=1000"`
}

// SimilarArtistsResponse maps every known submitted artist to its neighbours.
type SimilarArtistsResponse struct {
	Artists map[string][]recgo.ArtistResult `json:"artists"`
}

// PlaylistsRequest is the body of POST /v1/playlists. URL is the playlist id.
type PlaylistsRequest struct {
	URL    string                `json:"url" validate:"max=2048"`
	Tracks []recgo.PlaylistEntry `json:"tracks" validate:"required,min=1,max=10000"`
	Update *bool                 `json:"update"`
	Limit  int                   `json:"limit" validate:"gte=0,lte=1000"`
}

// SaveResponse describes a background save.
type SaveResponse struct {
	ID     string `json:"id"`
	Folder string `json:"folder"`
	Done   bool   `json:"done"`
	Error  string `json:"error,omitempty"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleArtists(w http.ResponseWriter, r *http.Request) {
	var req ArtistsRequest
	if !s.decode(w, r, &req) {
		return
	}

	optFns := s.processOptions(req.Update, req.Limit)
	if req.Recommend != nil && !*req.Recommend {
		optFns = append(optFns, recgo.WithoutRecommend())
	}

	s.mu.Lock()
	res, err := s.model.ProcessArtists(r.Context(), req.Artists, req.Playlist, optFns...)
	s.mu.Unlock()

	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSimilarArtists(w http.ResponseWriter, r *http.Request) {
	var req SimilarArtistsRequest
	if !s.decode(w, r, &req) {
		return
	}

	limit := req.Limit
	if limit == 0 {
		limit = s.opts.DefaultLimit
	}

	s.mu.RLock()
	res, err := s.model.SimilarArtists(r.Context(), req.Artists, limit)
	s.mu.RUnlock()

	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, SimilarArtistsResponse{Artists: res})
}

func (s *Server) handlePlaylists(w http.ResponseWriter, r *http.Request) {
	var req PlaylistsRequest
	if !s.decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	res, err := s.model.ProcessPlaylist(r.Context(), req.Tracks, req.URL, s.processOptions(req.Update, req.Limit)...)
	s.mu.Unlock()

	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	st := s.model.Status()
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	task, err := s.Save(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, SaveResponse{ID: task.ID, Folder: task.Folder})
}

func (s *Server) handleSaveStatus(w http.ResponseWriter, _ *http.Request) {
	s.taskMu.Lock()
	task := s.lastTask
	s.taskMu.Unlock()

	if task == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "no save started"})
		return
	}

	resp := SaveResponse{ID: task.ID, Folder: task.Folder}

	select {
	case <-task.Done():
		resp.Done = true
		if err := task.Err(); err != nil {
			resp.Error = err.Error()
		}
	default:
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) processOptions(update *bool, limit int) []recgo.ProcessOption {
	if limit == 0 {
		limit = s.opts.DefaultLimit
	}

	optFns := []recgo.ProcessOption{recgo.WithLimit(limit)}
	if update != nil && !*update {
		optFns = append(optFns, recgo.WithoutUpdate())
	}

	return optFns
}

// decode reads and validates a JSON body. It writes a 400 and returns false on
// failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return false
	}

	if err := s.validate.Struct(v); err != nil {
		resp := ErrorResponse{Error: "validation failed"}

		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				resp.Details = append(resp.Details, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
		}

		writeJSON(w, http.StatusBadRequest, resp)

		return false
	}

	return true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError

	var (
		unknown  *recgo.ErrUnknownEntity
		mismatch *recgo.ErrDimensionMismatch
	)

	switch {
	case errors.Is(err, recgo.ErrInvalidK), errors.As(err, &mismatch):
		code = http.StatusBadRequest
	case errors.As(err, &unknown):
		code = http.StatusNotFound
	}

	if code >= http.StatusInternalServerError {
		s.opts.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}

	writeJSON(w, code, ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
