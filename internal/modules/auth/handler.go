package auth

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/likenesshq/core/internal/middleware"
	"github.com/likenesshq/core/internal/pkg/response"
)

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/auth")
	g.POST("/register", h.register)
	g.POST("/login", h.login)

	me := g.Group("", authMW)
	me.GET("/me", h.me)
	me.PATCH("/me", h.updateProfile)
	me.POST("/logout", h.logout)
	me.GET("/sessions", h.listSessions)
	me.DELETE("/sessions/:id", h.revokeSession)
	me.POST("/sessions/revoke-others", h.revokeOthers)
	me.GET("/keys", h.listKeys)
	me.POST("/keys", h.createKey)
	me.DELETE("/keys/:id", h.deleteKey)
	me.PATCH("/keys/:id", h.toggleKey)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrBadCredentials):
		response.Unauthorized(c)
	case errors.Is(err, ErrEmailTaken):
		response.Conflict(c, err.Error())
	case errors.Is(err, ErrWeakPassword), errors.Is(err, ErrBadScope), errors.Is(err, ErrNoScopes):
		response.BadRequest(c, err.Error())
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrKeyNotFound):
		response.NotFoundMsg(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}

func (h *Handler) register(c *gin.Context) {
	var dto RegisterDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	user, err := h.svc.Register(&dto)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Created(c, user)
}

func (h *Handler) login(c *gin.Context) {
	var dto LoginDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	token, user, err := h.svc.Login(&dto, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, gin.H{"token": token, "user": user})
}

func (h *Handler) me(c *gin.Context) {
	user, err := h.svc.GetUser(middleware.CurrentUserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, user)
}

func (h *Handler) updateProfile(c *gin.Context) {
	var dto UpdateProfileDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	user, err := h.svc.UpdateProfile(middleware.CurrentUserID(c), middleware.CurrentSessionID(c), &dto)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, user)
}

func (h *Handler) logout(c *gin.Context) {
	sid := middleware.CurrentSessionID(c)
	if sid == "" {
		// API key callers have no session to revoke.
		response.NoContent(c)
		return
	}
	if err := h.svc.RevokeSession(middleware.CurrentUserID(c), sid); err != nil {
		h.writeError(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) listSessions(c *gin.Context) {
	sessions, err := h.svc.ListSessions(middleware.CurrentUserID(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"data": sessions, "current": middleware.CurrentSessionID(c)})
}

func (h *Handler) revokeSession(c *gin.Context) {
	if err := h.svc.RevokeSession(middleware.CurrentUserID(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) revokeOthers(c *gin.Context) {
	err := h.svc.RevokeOtherSessions(middleware.CurrentUserID(c), middleware.CurrentSessionID(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) listKeys(c *gin.Context) {
	keys, err := h.svc.ListKeys(middleware.CurrentUserID(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, keys)
}

func (h *Handler) createKey(c *gin.Context) {
	var dto CreateKeyDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	key, err := h.svc.CreateKey(middleware.CurrentUserID(c), &dto)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Created(c, key)
}

func (h *Handler) deleteKey(c *gin.Context) {
	if err := h.svc.DeleteKey(middleware.CurrentUserID(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	response.NoContent(c)
}

type toggleKeyDTO struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (h *Handler) toggleKey(c *gin.Context) {
	var dto toggleKeyDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.svc.SetKeyEnabled(middleware.CurrentUserID(c), c.Param("id"), *dto.Enabled); err != nil {
		h.writeError(c, err)
		return
	}
	response.NoContent(c)
}
