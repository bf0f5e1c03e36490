package precompute

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/bookbridge/core/internal/modules/reading/cefr"
	"github.com/bookbridge/core/internal/pkg/pagination"
	"github.com/bookbridge/core/internal/pkg/response"
	"github.com/bookbridge/core/internal/pkg/taskqueue"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/books/:id/precompute", h.enqueue)

	g := rg.Group("/tasks")
	g.GET("", h.listTasks)
	g.GET("/:id", h.getTask)
	g.DELETE("/:id", h.deleteTask)
}

type enqueueDTO struct {
	Levels []string `json:"levels"`
	Voice  string   `json:"voice"`
	Audio  bool     `json:"audio"`
}

// POST /books/:id/precompute
func (h *Handler) enqueue(c *gin.Context) {
	var dto enqueueDTO
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&dto); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	job := Job{BookID: c.Param("id"), VoiceID: dto.Voice, Audio: dto.Audio}
	for _, raw := range dto.Levels {
		l, err := cefr.Parse(raw)
		if err != nil || !l.Valid() {
			response.BadRequest(c, "level must be one of A1, A2, B1, B2, C1, C2")
			return
		}
		job.Levels = append(job.Levels, l)
	}
	chunks, err := h.svc.chunks.Chunks(c.Request.Context(), job.BookID)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if len(chunks) == 0 {
		response.NotFoundMsg(c, "book not found")
		return
	}

	task, err := h.svc.Enqueue(c.Request.Context(), job)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Accepted(c, task)
}

// GET /tasks?kind=&status=&page=&size=
func (h *Handler) listTasks(c *gin.Context) {
	q := pagination.FromContext(c)
	tasks, total, err := h.svc.tasks.List(c.Request.Context(), q.Page, q.Size,
		c.Query("kind"), taskqueue.TaskStatus(c.Query("status")))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, tasks, response.NewPagination(total, q.Page, q.Size))
}

// GET /tasks/:id
func (h *Handler) getTask(c *gin.Context) {
	task, err := h.svc.tasks.GetByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, taskqueue.ErrTaskNotFound) {
		response.NotFoundMsg(c, "task not found")
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, task)
}

// DELETE /tasks/:id
func (h *Handler) deleteTask(c *gin.Context) {
	err := h.svc.tasks.DeleteByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, taskqueue.ErrTaskNotFound) {
		response.NotFoundMsg(c, "task not found")
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}
