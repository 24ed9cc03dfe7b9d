package webhook

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/likenesshq/core/internal/middleware"
	"github.com/likenesshq/core/internal/pkg/pagination"
	"github.com/likenesshq/core/internal/pkg/response"
)

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// RegisterRoutes mounts the partner webhook surface. Every route
// requires an API key carrying the webhooks:manage scope; hooks are
// only ever visible to the key that registered them.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/webhooks", authMW, middleware.RequireKeyScope(middleware.ScopeWebhooksManage))
	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/events", h.listEventEnum)
	g.GET("/deliveries/:id", h.getDelivery)
	g.POST("/deliveries/:id/redeliver", h.redeliver)
	g.GET("/:id", h.get)
	g.PUT("/:id", h.update)
	g.PATCH("/:id", h.update)
	g.DELETE("/:id", h.delete)
	g.GET("/:id/deliveries", h.listDeliveries)
}

// ownerKeyID scopes every query to the caller's API key. The route
// guard guarantees a key is present; an empty id matches nothing.
func ownerKeyID(c *gin.Context) string {
	if key := middleware.CurrentAPIKey(c); key != nil {
		return key.ID
	}
	return ""
}

func isValidationErr(err error) bool {
	return errors.Is(err, ErrInvalidURL) ||
		errors.Is(err, ErrUnknownEvent) ||
		errors.Is(err, ErrNoEvents) ||
		errors.Is(err, ErrSecretTooShort)
}

func (h *Handler) list(c *gin.Context) {
	items, err := h.svc.List(ownerKeyID(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	out := make([]webhookResponse, len(items))
	for i, w := range items {
		out[i] = toResponse(&w, false)
	}
	response.OK(c, out)
}

func (h *Handler) get(c *gin.Context) {
	w, err := h.svc.GetByID(c.Param("id"), ownerKeyID(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if w == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, toResponse(w, false))
}

func (h *Handler) create(c *gin.Context) {
	var dto CreateWebhookDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	w, err := h.svc.Create(ownerKeyID(c), &dto)
	if err != nil {
		if isValidationErr(err) {
			response.BadRequest(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	// The secret is shown exactly once, at creation.
	response.Created(c, toResponse(w, true))
}

func (h *Handler) update(c *gin.Context) {
	var dto UpdateWebhookDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	w, err := h.svc.Update(c.Param("id"), ownerKeyID(c), &dto)
	if err != nil {
		if isValidationErr(err) {
			response.BadRequest(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	if w == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, toResponse(w, false))
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Param("id"), ownerKeyID(c)); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c)
			return
		}
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) listEventEnum(c *gin.Context) {
	response.OK(c, Events())
}

func (h *Handler) listDeliveries(c *gin.Context) {
	q := pagination.FromContext(c)
	items, pag, err := h.svc.ListDeliveries(q, c.Param("id"), ownerKeyID(c))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c)
			return
		}
		response.InternalError(c, err)
		return
	}
	out := make([]deliveryResponse, len(items))
	for i := range items {
		out[i] = toDeliveryResponse(&items[i])
	}
	response.Paged(c, out, pag)
}

func (h *Handler) getDelivery(c *gin.Context) {
	d, err := h.svc.GetDelivery(c.Param("id"), ownerKeyID(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if d == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, toDeliveryResponse(d))
}

func (h *Handler) redeliver(c *gin.Context) {
	err := h.svc.Redeliver(c.Request.Context(), c.Param("id"), ownerKeyID(c))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			response.NotFound(c)
		case errors.Is(err, ErrHookDisabled):
			response.UnprocessableEntity(c, err.Error())
		default:
			response.InternalError(c, err)
		}
		return
	}
	response.Accepted(c, gin.H{"queued": true})
}
