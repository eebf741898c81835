package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jesadaho/asset-ace-sub000/internal/apperr"
	"github.com/jesadaho/asset-ace-sub000/internal/objectstore"
	"github.com/jesadaho/asset-ace-sub000/internal/profile"
)

type ProfileHandler struct {
	profiles *profile.Service
}

func NewProfileHandler(profiles *profile.Service) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

// Get handles GET /me/profile
func (h *ProfileHandler) Get(c *gin.Context) {
	u, err := h.profiles.Get(c.Request.Context(), UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// Update handles PUT /me/profile
func (h *ProfileHandler) Update(c *gin.Context) {
	var req profile.UpdateRequest
	if !bindJSON(c, &req) {
		return
	}
	u, err := h.profiles.Update(c.Request.Context(), UserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// UploadHandler presigns object uploads.
type UploadHandler struct {
	store objectstore.Gateway
}

func NewUploadHandler(store objectstore.Gateway) *UploadHandler {
	return &UploadHandler{store: store}
}

type presignRequest struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"content_type" binding:"required"`
}

// Presign handles POST /uploads/presign
func (h *UploadHandler) Presign(c *gin.Context) {
	if h.store == nil {
		respondError(c, apperr.Unavailable("object storage", errors.New("not configured")))
		return
	}
	var req presignRequest
	if !bindJSON(c, &req) {
		return
	}
	up, err := h.store.PresignUpload(c.Request.Context(), req.Filename, req.ContentType)
	if err != nil {
		if errors.Is(err, objectstore.ErrUnsupportedContentType) {
			respondError(c, apperr.Validation("content type must be an image or PDF"))
			return
		}
		respondError(c, apperr.Unavailable("object storage", err))
		return
	}
	c.JSON(http.StatusOK, up)
}
