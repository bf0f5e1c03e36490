package delivery

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bookbridge/core/internal/modules/reading/cefr"
	"github.com/bookbridge/core/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/books/:id/chunks")
	g.GET("/:index", h.get)
	g.DELETE("/:index/simplifications/:level", h.invalidate)
}

func parseLevel(raw string) (cefr.Level, error) {
	if raw == "" {
		return cefr.Original, nil
	}
	return cefr.Parse(raw)
}

// GET /books/:id/chunks/:index?level=B1&voice=nova
func (h *Handler) get(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		response.BadRequest(c, "chunk index must be a non-negative integer")
		return
	}
	level, err := parseLevel(c.Query("level"))
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	bundle, err := h.svc.GetReadableChunk(c.Request.Context(), Request{
		BookID:     c.Param("id"),
		ChunkIndex: index,
		Level:      level,
		VoiceID:    c.Query("voice"),
	})
	switch {
	case errors.Is(err, ErrInvalidRequest):
		response.BadRequest(c, err.Error())
	case errors.Is(err, ErrChunkNotFound):
		response.NotFoundMsg(c, "chunk not found")
	case err != nil:
		response.InternalError(c, err)
	default:
		response.OK(c, bundle)
	}
}

// DELETE /books/:id/chunks/:index/simplifications/:level
func (h *Handler) invalidate(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		response.BadRequest(c, "chunk index must be a non-negative integer")
		return
	}
	level, err := cefr.Parse(c.Param("level"))
	if err != nil || !level.Valid() {
		response.BadRequest(c, "level must be one of A1, A2, B1, B2, C1, C2")
		return
	}
	deleted, err := h.svc.InvalidateSimplification(c.Request.Context(), c.Param("id"), index, level)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if !deleted {
		response.NotFoundMsg(c, "no cached simplification")
		return
	}
	response.NoContent(c)
}
