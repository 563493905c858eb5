package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"kruasiam.com/app/internal/http/middleware"
	"kruasiam.com/app/internal/http/validation"
	"kruasiam.com/app/internal/realtime"
	"kruasiam.com/app/internal/shared/apperr"
)

type RealtimeHandler struct {
	auth *realtime.Authorizer
}

func NewRealtimeHandler(auth *realtime.Authorizer) *RealtimeHandler {
	return &RealtimeHandler{auth: auth}
}

type subscribeAuthReq struct {
	Channel string `json:"channel" binding:"required,max=128"`
}

// Authorize grants or denies a live-update channel subscription for the
// current session. Called by the realtime gateway before it attaches a client.
// POST /api/realtime/auth
func (h *RealtimeHandler) Authorize(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)

	var req subscribeAuthReq
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Fail(c, apperr.InvalidErr("Request data is invalid.", validation.FromBindError(err, &req)))
		return
	}

	caller := realtime.Caller{UserID: u.ID, Staff: u.IsStaff()}
	err := h.auth.Authorize(c.Request.Context(), caller, req.Channel)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"channel": req.Channel, "authorized": true})
	case errors.Is(err, realtime.ErrChannelUnknown):
		middleware.Fail(c, apperr.NotFoundErr("Unknown channel."))
	case errors.Is(err, realtime.ErrSubscribeForbidden):
		middleware.Fail(c, apperr.ForbiddenErr("You cannot subscribe to this channel."))
	default:
		middleware.Fail(c, apperr.Wrap(err))
	}
}
