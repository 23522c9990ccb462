package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/hyperjump/tagsearch/internal/models"
	"github.com/hyperjump/tagsearch/internal/search"
	"github.com/hyperjump/tagsearch/internal/storage"
)

type parseRequest struct {
	Query          string `json:"query"`
	ResolveAliases *bool  `json:"resolve_aliases,omitempty"`
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("parse request", zap.String("query", req.Query))
	q, err := s.engine.Parse(r.Context(), req.Query, req.ResolveAliases == nil || *req.ResolveAliases)
	if err != nil {
		s.respondPipelineError(w, "parse failed", err)
		return
	}
	model, err := json.Marshal(q)
	if err != nil {
		s.respondPipelineError(w, "parse failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, &models.CompileResponse{
		RequestID: RequestIDFrom(r.Context()),
		Query:     req.Query,
		Model:     model,
	})
}

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	var req models.CompileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("compile request", zap.String("query", req.Query), zap.String("backend", string(req.Backend)))
	resp, err := s.engine.Compile(r.Context(), &req)
	if err != nil {
		s.respondPipelineError(w, "compile failed", err)
		return
	}
	resp.RequestID = RequestIDFrom(r.Context())
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	req := models.SearchRequest{
		Query:             params.Get("tags"),
		Backend:           models.Backend(params.Get("backend")),
		AlwaysShowDeleted: params.Get("always_show_deleted") == "true",
	}
	var err error
	if req.Limit, err = intParam(params.Get("limit")); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if req.Page, err = intParam(params.Get("page")); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid page")
		return
	}
	if v := params.Get("resolve_aliases"); v != "" {
		resolve, err := strconv.ParseBool(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid resolve_aliases")
			return
		}
		req.ResolveAliases = &resolve
	}

	s.logger.Debug("search request", zap.String("query", req.Query), zap.Int("limit", req.Limit))
	resp, err := s.engine.Search(r.Context(), &req)
	if err != nil {
		s.respondPipelineError(w, "search failed", err)
		return
	}
	resp.RequestID = RequestIDFrom(r.Context())
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	if s.indexer == nil {
		s.respondError(w, http.StatusNotImplemented, "indexing not enabled")
		return
	}
	n, err := s.indexer.Reindex(r.Context())
	if err != nil {
		s.logger.Error("reindex failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.engine.PurgeCache()
	s.respondJSON(w, http.StatusOK, map[string]any{"indexed": n, "status": "reindexed"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	posts, err := s.storage.CountPosts(ctx)
	if err != nil {
		s.logger.Error("status: count posts failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	tags, err := s.storage.CountTags(ctx)
	if err != nil {
		s.logger.Error("status: count tags failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := &models.StatusResponse{Posts: posts, Tags: tags, Version: s.version}
	if s.index != nil {
		if n, err := s.index.DocCount(); err == nil {
			resp.IndexedPosts = n
		}
	}
	if diskBytes, err := storage.DiskUsageBytes(s.config.Storage.DatabasePath, s.config.Storage.BleveIndexPath); err == nil {
		resp.DiskUsageBytes = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch search.ErrorKind(err) {
	case "count_exceeded", "invalid_range", "unsupported":
		return http.StatusUnprocessableEntity
	case "invalid_request":
		return http.StatusBadRequest
	case "unavailable":
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

func (s *Server) respondPipelineError(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(msg, zap.Error(err))
	} else {
		s.logger.Debug(msg, zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
