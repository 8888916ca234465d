package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/malan-ai/malan-server/internal/infrastructure/storage"
	"github.com/malan-ai/malan-server/internal/interfaces/httpserver/responses"
)

const fileNotFound = "File not found"

// DownloadHandler serves stored reply files.
type DownloadHandler struct {
	storage storage.Storage
	log     zerolog.Logger
}

func NewDownloadHandler(store storage.Storage, log zerolog.Logger) *DownloadHandler {
	return &DownloadHandler{
		storage: store,
		log:     log.With().Str("component", "download-handler").Logger(),
	}
}

// Download godoc
// @Summary      Download a stored reply
// @Description  Streams a reply file written by POST /api/chat in stored mode.
// @Tags         chat
// @Produce      plain
// @Param        filename  path      string  true  "Reply file name"
// @Success      200       {file}    file
// @Failure      404       {object}  map[string]string
// @Router       /download/{filename} [get]
func (h *DownloadHandler) Download(c *gin.Context) {
	name := c.Param("filename")
	if h.storage == nil || !validFileName(name) {
		c.JSON(http.StatusNotFound, gin.H{"error": fileNotFound})
		return
	}

	body, contentType, err := h.storage.Download(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": fileNotFound})
			return
		}
		h.log.Error().Err(err).Str("file", name).Msg("download failed")
		responses.HandleErrorWithStatus(c, http.StatusInternalServerError, err, "failed to read file")
		return
	}
	defer body.Close()

	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}
	c.DataFromReader(http.StatusOK, -1, contentType, body, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", name),
	})
}

func validFileName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}
