package book

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/bookbridge/core/internal/modules/reading/chunker"
	"github.com/bookbridge/core/internal/pkg/pagination"
	"github.com/bookbridge/core/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/books")
	g.GET("", h.list)
	g.POST("", h.ingest)
	g.GET("/:id", h.get)
	g.DELETE("/:id", h.delete)
}

type bookResponse struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Author     string `json:"author"`
	TextHash   string `json:"text_hash"`
	ChunkCount int    `json:"chunk_count"`
	Created    string `json:"created"`
}

// GET /books?page=&size=
func (h *Handler) list(c *gin.Context) {
	books, page, err := h.svc.List(c.Request.Context(), pagination.FromContext(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	out := make([]bookResponse, len(books))
	for i := range books {
		b := &books[i]
		out[i] = bookResponse{
			ID: b.ID, Title: b.Title, Author: b.Author, TextHash: b.TextHash,
			ChunkCount: b.ChunkCount, Created: b.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}
	}
	response.Paged(c, out, page)
}

// POST /books
func (h *Handler) ingest(c *gin.Context) {
	var dto IngestDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	book, err := h.svc.Ingest(c.Request.Context(), dto)
	switch {
	case errors.Is(err, ErrInvalidBook):
		response.BadRequest(c, err.Error())
	case errors.Is(err, chunker.ErrInvalidSourceText):
		response.UnprocessableEntity(c, err.Error())
	case errors.Is(err, ErrBookExists):
		response.Conflict(c, err.Error())
	case err != nil:
		response.InternalError(c, err)
	default:
		response.Created(c, book)
	}
}

// GET /books/:id
func (h *Handler) get(c *gin.Context) {
	book, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, ErrBookNotFound) {
		response.NotFoundMsg(c, "book not found")
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, book)
}

// DELETE /books/:id?purge_media=true
func (h *Handler) delete(c *gin.Context) {
	purge := c.Query("purge_media") == "true"
	res, err := h.svc.Delete(c.Request.Context(), c.Param("id"), purge)
	if errors.Is(err, ErrBookNotFound) {
		response.NotFoundMsg(c, "book not found")
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, res)
}
