package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"kruasiam.com/app/internal/http/middleware"
	"kruasiam.com/app/internal/modules/cleanup"
	"kruasiam.com/app/internal/shared/apperr"
)

// CleanupHandler exposes the retention purge to the scheduler. Callers
// authenticate with a shared secret header, not a session.
type CleanupHandler struct {
	svc    *cleanup.Service
	secret string
}

func NewCleanupHandler(svc *cleanup.Service, secret string) *CleanupHandler {
	return &CleanupHandler{svc: svc, secret: secret}
}

// Purge runs one bounded purge pass and reports progress.
// POST /internal/cleanup/run (header X-Cleanup-Secret)
func (h *CleanupHandler) Purge(c *gin.Context) {
	if !h.authorized(c) {
		middleware.Fail(c, apperr.UnauthorizedErr("Invalid cleanup secret."))
		return
	}

	rep, err := h.svc.PurgeExpired(c.Request.Context())
	if err != nil {
		middleware.Fail(c, apperr.Wrap(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"scanned":          rep.Scanned,
		"purged":           rep.Purged,
		"receipt_failures": rep.ReceiptFailures,
		"remaining":        rep.Remaining,
	})
}

// authorized compares the header secret in constant time. An empty configured
// secret disables the endpoint entirely rather than opening it up.
func (h *CleanupHandler) authorized(c *gin.Context) bool {
	if h.secret == "" {
		return false
	}
	got := c.GetHeader("X-Cleanup-Secret")
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) == 1
}
