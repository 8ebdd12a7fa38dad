package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/inkwell/services"
	"github.com/cppla/inkwell/utils"
)

// MediaController manages the upload library.
type MediaController struct {
	svc      *services.Services
	maxBytes int64
}

// NewMediaController creates a MediaController accepting uploads up to maxMB megabytes.
func NewMediaController(svc *services.Services, maxMB int) *MediaController {
	if maxMB <= 0 {
		maxMB = 20
	}
	return &MediaController{svc: svc, maxBytes: int64(maxMB) << 20}
}

// Upload stores a multipart "file" with optional name, alt_text and caption fields.
func (m *MediaController) Upload(ctx *gin.Context) {
	// multipart framing needs a little room beyond the file itself
	ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, m.maxBytes+1<<20)

	fh, err := ctx.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			m.tooLarge(ctx)
			return
		}
		utils.Error(ctx, http.StatusUnprocessableEntity, "validation failed", gin.H{"file": "is required"})
		return
	}
	if fh.Size > m.maxBytes {
		m.tooLarge(ctx)
		return
	}
	f, err := fh.Open()
	if err != nil {
		respondError(ctx, services.Internal(err))
		return
	}
	defer f.Close()

	media, err := m.svc.Media.Upload(ctx.Request.Context(), currentUser(ctx), services.UploadInput{
		FileName: fh.Filename,
		Name:     ctx.PostForm("name"),
		AltText:  ctx.PostForm("alt_text"),
		Caption:  ctx.PostForm("caption"),
		Body:     f,
	})
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Created(ctx, media)
}

func (m *MediaController) tooLarge(ctx *gin.Context) {
	utils.Error(ctx, http.StatusUnprocessableEntity, "validation failed",
		gin.H{"file": fmt.Sprintf("must not exceed %d MB", m.maxBytes>>20)})
}

func (m *MediaController) List(ctx *gin.Context) {
	p := pageFrom(ctx)
	f := services.MediaFilter{
		Type:       strings.TrimSpace(ctx.Query("type")),
		UploadedBy: queryUint(ctx, "uploaded_by"),
		Search:     strings.TrimSpace(ctx.Query("q")),
	}
	items, total, err := m.svc.Media.List(ctx.Request.Context(), currentUser(ctx), f, p)
	if err != nil {
		respondError(ctx, err)
		return
	}
	paginated(ctx, items, p, 24, total)
}

func (m *MediaController) Show(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	media, err := m.svc.Media.Get(ctx.Request.Context(), currentUser(ctx), id)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, media)
}

func (m *MediaController) Update(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	var req struct {
		Name    *string `json:"name" binding:"omitempty,min=1,max=255"`
		AltText *string `json:"alt_text" binding:"omitempty,max=255"`
		Caption *string `json:"caption" binding:"omitempty,max=500"`
	}
	if !bind(ctx, &req) {
		return
	}
	media, err := m.svc.Media.Update(ctx.Request.Context(), currentUser(ctx), id, services.MediaUpdate{
		Name:    req.Name,
		AltText: req.AltText,
		Caption: req.Caption,
	})
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, media)
}

// Delete removes the row and the stored file.
func (m *MediaController) Delete(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	if err := m.svc.Media.Delete(ctx.Request.Context(), currentUser(ctx), id); err != nil {
		respondError(ctx, err)
		return
	}
	utils.SuccessMessage(ctx, "media deleted", nil)
}
