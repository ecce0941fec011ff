package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"padron/internal/search"
	"padron/internal/storage"
	logx "padron/pkg/logx"
)

const (
	msgEmptyBody   = "Petición JSON vacía o mal formada"
	msgInvalidJSON = "El cuerpo de la petición no es un JSON válido"
	msgInternal    = "Ocurrió un error interno en el servidor."

	msgImagesUnset   = "Ruta de imágenes no configurada en el servidor."
	msgBadFilename   = "Nombre de archivo no válido."
	msgImageNotFound = "Imagen no encontrada."
)

const healthTimeout = 3 * time.Second

func (s *Server) handleSearch(c *gin.Context) {
	log := reqLogger(c, s.log)

	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgEmptyBody})
		return
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgEmptyBody})
		return
	}
	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidJSON})
		return
	}
	obj, ok := body.(map[string]any)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgEmptyBody})
		return
	}

	criteria := criteriaFrom(obj)
	results, err := s.searcher.Search(c.Request.Context(), "web", criteria)
	if err != nil {
		log.Error("search failed", logx.Any("criteria", criteria), logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgInternal})
		return
	}
	log.Info("web search", logx.Int("results", len(results)), logx.Any("criteria", criteria))

	if results == nil {
		results = []search.Result{}
	}
	c.JSON(http.StatusOK, results)
}

// criteriaFrom keeps string values that are non-empty after trimming.
func criteriaFrom(obj map[string]any) storage.Criteria {
	out := storage.Criteria{}
	for k, v := range obj {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out[k] = s
		}
	}
	return out
}

func (s *Server) handleImage(c *gin.Context) {
	if s.imageRoot == "" {
		s.log.Error("image request but IMAGE_BASE_PATH is not configured")
		c.String(http.StatusInternalServerError, msgImagesUnset)
		return
	}

	name := strings.TrimPrefix(c.Param("filename"), "/")
	if !search.IsSafeFilename(name) {
		reqLogger(c, s.log).Warn("unsafe image file name", logx.String("filename", name))
		c.String(http.StatusBadRequest, msgBadFilename)
		return
	}

	path := filepath.Join(s.imageRoot, name)
	st, err := os.Stat(path)
	if err != nil || !st.Mode().IsRegular() {
		c.String(http.StatusNotFound, msgImageNotFound)
		return
	}
	c.File(path)
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.pinger == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()
	if err := s.pinger.Ping(ctx); err != nil {
		reqLogger(c, s.log).Warn("health check failed", logx.Err(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
