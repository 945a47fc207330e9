package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// ObjectSource is satisfied by *storage.MemoryUploader.
type ObjectSource interface {
	Object(key string) ([]byte, string, bool)
}

// UploadsHandler serves logos kept in memory when no object store is configured.
type UploadsHandler struct {
	objects ObjectSource
}

func NewUploadsHandler(objects ObjectSource) *UploadsHandler {
	return &UploadsHandler{objects: objects}
}

func (h *UploadsHandler) ServeObject(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	data, contentType, ok := h.objects.Object(key)
	if !ok {
		errorResponse(w, r, http.StatusNotFound, codeNotFound, "object not found")
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
