// Package photo proxies photo uploads from the capture page to the backend.
package photo

import (
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/voicecounsel/internal/api"
	"github.com/zhouzirui/voicecounsel/internal/auth"
	"github.com/zhouzirui/voicecounsel/internal/model/photo"
	photosvc "github.com/zhouzirui/voicecounsel/internal/service/photo"
	"github.com/zhouzirui/voicecounsel/pkg/utils"
)

// 单张图片上限 10MB
const maxImageSize = 10 << 20

// Handler exposes the photo upload endpoint.
type Handler struct {
	uploader photosvc.Uploader
}

// New creates a photo handler.
func New(uploader photosvc.Uploader) *Handler {
	return &Handler{uploader: uploader}
}

// RegisterRoutes attaches photo routes to the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/photo/upload", h.handleUpload)
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.FromContext(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, api.UserMessage(api.ErrUnauthenticated))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImageSize+1<<20)
	if err := r.ParseMultipartForm(maxImageSize); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil || len(data) == 0 {
		utils.RespondError(w, http.StatusBadRequest, "image file is empty")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}

	result, err := h.uploader.UploadPhoto(r.Context(), session, photo.Photo{
		Data:     data,
		MIMEType: contentType,
		FileName: header.Filename,
	})
	if err != nil {
		log.Printf("[photo] upload proxy failed: %v", err)
		utils.RespondError(w, api.HTTPStatus(err), api.UserMessage(err))
		return
	}
	utils.RespondJSON(w, http.StatusOK, result)
}
