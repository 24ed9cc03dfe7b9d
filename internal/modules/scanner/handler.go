package scanner

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/likenesshq/core/internal/middleware"
	"github.com/likenesshq/core/internal/pkg/pagination"
	"github.com/likenesshq/core/internal/pkg/response"
)

type SubmitScanDTO struct {
	ImageURLs []string `json:"image_urls" binding:"required,min=1"`
	Sources   []string `json:"sources"`
}

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/scans", authMW, middleware.RequireScope(middleware.ScopeScansRead))
	g.GET("", h.list)
	g.POST("", h.submit)
	g.GET("/:id", h.get)
	g.DELETE("/:id", h.cancel)
}

func (h *Handler) submit(c *gin.Context) {
	var dto SubmitScanDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	task, err := h.svc.Submit(c.Request.Context(), &ScanRequest{
		UserID:    middleware.CurrentUserID(c),
		ImageURLs: dto.ImageURLs,
		Sources:   dto.Sources,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrDisabled):
			response.UnprocessableEntity(c, err.Error())
		case errors.Is(err, ErrUnavailable):
			response.BadGateway(c, err.Error())
		default:
			response.InternalError(c, err)
		}
		return
	}
	response.Accepted(c, task)
}

func (h *Handler) list(c *gin.Context) {
	q := pagination.FromContext(c)
	tasks, total, err := h.svc.List(c.Request.Context(), middleware.CurrentUserID(c), q.Page, q.Size)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	totalPage := int((total + int64(q.Size) - 1) / int64(q.Size))
	response.Paged(c, tasks, response.Pagination{
		Total:       total,
		CurrentPage: q.Page,
		TotalPage:   totalPage,
		Size:        q.Size,
		HasNextPage: q.Page < totalPage,
	})
}

func (h *Handler) get(c *gin.Context) {
	task, err := h.svc.Get(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if task == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, task)
}

func (h *Handler) cancel(c *gin.Context) {
	if err := h.svc.Cancel(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id")); err != nil {
		response.UnprocessableEntity(c, err.Error())
		return
	}
	response.OK(c, gin.H{"cancelled": true})
}
