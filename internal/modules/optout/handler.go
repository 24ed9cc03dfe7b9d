package optout

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/likenesshq/core/internal/middleware"
	"github.com/likenesshq/core/internal/pkg/mail"
	"github.com/likenesshq/core/internal/pkg/pagination"
	"github.com/likenesshq/core/internal/pkg/response"
)

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/opt-outs", authMW)
	g.GET("", h.list)
	g.POST("/send", h.send)
	g.POST("/send-batch", h.sendBatch)
	g.POST("/track", h.track)
	g.POST("/response", h.recordResponse)
	g.POST("/complete", h.complete)
	g.GET("/:id", h.get)
	g.POST("/:id/follow-up", h.followUp)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	var tplErr *TemplateError
	switch {
	case errors.Is(err, ErrCompanyNotFound), errors.Is(err, ErrRequestNotFound):
		response.NotFoundMsg(c, err.Error())
	case errors.Is(err, ErrAlreadySent):
		response.Conflict(c, err.Error())
	case errors.Is(err, ErrNotAutomatable),
		errors.Is(err, ErrBadTransition),
		errors.Is(err, ErrNotCompletable):
		response.UnprocessableEntity(c, err.Error())
	case errors.As(err, &tplErr):
		response.InternalError(c, err)
	case mail.IsTransient(err), errors.Is(err, mail.ErrDisabled):
		response.BadGateway(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}

func (h *Handler) list(c *gin.Context) {
	q := pagination.FromContext(c)
	items, pag, err := h.svc.List(middleware.CurrentUserID(c), q, c.Query("status"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	out := make([]requestResponse, len(items))
	for i := range items {
		out[i] = toResponse(&items[i])
	}
	response.Paged(c, out, pag)
}

func (h *Handler) get(c *gin.Context) {
	req, err := h.svc.Get(middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, toResponse(req))
}

func (h *Handler) send(c *gin.Context) {
	var dto SendDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	req, err := h.svc.SendNotice(c.Request.Context(), middleware.CurrentUserID(c), dto.CompanySlug)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, toResponse(req))
}

func (h *Handler) sendBatch(c *gin.Context) {
	result, err := h.svc.SendBatch(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, result)
}

func (h *Handler) track(c *gin.Context) {
	var dto SendDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	req, err := h.svc.EnsureForCompany(middleware.CurrentUserID(c), dto.CompanySlug)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Created(c, toResponse(req))
}

func (h *Handler) followUp(c *gin.Context) {
	req, err := h.svc.SendFollowUp(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, toResponse(req))
}

func (h *Handler) recordResponse(c *gin.Context) {
	var dto RecordResponseDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	req, err := h.svc.RecordResponse(middleware.CurrentUserID(c), &dto)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, toResponse(req))
}

func (h *Handler) complete(c *gin.Context) {
	var dto CompleteDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	req, err := h.svc.Complete(middleware.CurrentUserID(c), &dto)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, toResponse(req))
}
