package server

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/katachi/internal/embedding"
	"github.com/hyperjump/katachi/internal/imaging"
	"github.com/hyperjump/katachi/internal/models"
	"github.com/hyperjump/katachi/internal/search"
	"github.com/hyperjump/katachi/internal/storage"
	"github.com/hyperjump/katachi/internal/vector"
	"go.uber.org/zap"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	query := models.SearchQuery{Text: r.FormValue("text")}
	if raw := r.FormValue("k"); raw != "" {
		k, err := strconv.Atoi(raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "k must be an integer")
			return
		}
		query.K = k
	}

	img, err := imaging.Decode(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("search request", zap.String("text", query.Text), zap.Int("k", query.K))
	response, err := s.engine.Search(r.Context(), img, &query)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Reload(); err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"index": s.engine.Status(),
	}
	if s.storage != nil {
		count, err := s.storage.CountItems(r.Context(), "")
		if err != nil {
			s.logger.Error("status: count wardrobe items failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp["wardrobe_items"] = count
	}

	if s.appConfig != nil {
		resp["config"] = map[string]interface{}{
			"embedding_provider":   s.appConfig.Embedding.Provider,
			"embedding_dimensions": s.appConfig.Embedding.Dimensions,
			"default_k":            s.appConfig.Search.DefaultK,
			"max_k":                s.appConfig.Search.MaxK,
			"corpus_dir":           s.appConfig.Index.CorpusDir,
			"mask_dir":             s.appConfig.Index.MaskDir,
			"wardrobe_db_path":     s.appConfig.Storage.WardrobeDBPath,
		}
		diskBytes, err := storage.StoreFootprint(
			s.appConfig.Storage.EmbeddingsPath,
			s.appConfig.Storage.PathsPath,
			s.appConfig.Storage.WardrobeDBPath,
		)
		if err == nil {
			resp["disk_usage_bytes"] = diskBytes
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWardrobeAdd(w http.ResponseWriter, r *http.Request) {
	var input models.WardrobeInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(input.UserID) == "" || strings.TrimSpace(input.ProductPath) == "" {
		s.respondError(w, http.StatusBadRequest, "user_id and product_path are required")
		return
	}
	s.logger.Debug("wardrobe add request", zap.String("user_id", input.UserID), zap.String("product_path", input.ProductPath))
	item, err := s.storage.AddItem(r.Context(), &input)
	if err != nil {
		s.logger.Error("wardrobe add failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, item)
}

func (s *Server) handleWardrobeList(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	offset, err := queryInt(r, "offset")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "offset must be an integer")
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	items, err := s.storage.ListItems(r.Context(), userID, offset, limit)
	if err != nil {
		s.logger.Error("wardrobe list failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := s.storage.CountItems(r.Context(), userID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"user_id": userID, "items": items, "total": total})
}

func (s *Server) handleWardrobeRemove(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	productPath := r.URL.Query().Get("product_path")
	if productPath == "" {
		s.respondError(w, http.StatusBadRequest, "product_path is required")
		return
	}
	s.logger.Debug("wardrobe remove request", zap.String("user_id", userID), zap.String("product_path", productPath))
	n, err := s.storage.RemoveItem(r.Context(), userID, productPath)
	if err != nil {
		s.logger.Error("wardrobe remove failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]int64{"removed": n})
}

func (s *Server) handleWardrobeGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.storage.GetItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, item)
}

func (s *Server) handleWardrobeDeleteItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.storage.DeleteItem(r.Context(), id); err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, embedding.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, vector.ErrEmptyIndex):
		return http.StatusConflict
	case errors.Is(err, search.ErrNoIndex),
		errors.Is(err, embedding.ErrModelUnavailable),
		errors.Is(err, vector.ErrCorruptIndex),
		errors.Is(err, fs.ErrNotExist):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
