package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"kruasiam.com/app/internal/config"
	"kruasiam.com/app/internal/http/handlers"
	"kruasiam.com/app/internal/http/middleware"
)

type RouterDeps struct {
	Cfg config.Config
	DB  *gorm.DB
	Log *slog.Logger

	Orders   *handlers.OrderHandler
	Admin    *handlers.AdminOrderHandler
	Accounts *handlers.AdminAccountHandler
	Realtime *handlers.RealtimeHandler
	Cleanup  *handlers.CleanupHandler
}

func NewRouter(d RouterDeps) *gin.Engine {
	if d.Cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(d.Log))
	r.Use(middleware.Recovery(d.Log))
	r.Use(middleware.ErrorHandler(d.Log))
	r.Use(middleware.SessionMiddleware(middleware.SessionCfg{
		DB:         d.DB,
		CookieName: "ks_session",
		Secure:     d.Cfg.IsProduction(),
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	api := r.Group("/api")
	{
		me := api.Group("/orders", middleware.RequireAuth())
		{
			me.POST("", d.Orders.Create)
			me.GET("", d.Orders.List)
			me.GET("/active", d.Orders.Active)
			me.GET("/:id", d.Orders.Get)
			me.POST("/:id/cancel", d.Orders.Cancel)
			me.POST("/:id/receipt", d.Orders.UploadReceipt)
		}

		api.POST("/realtime/auth", middleware.RequireAuth(), d.Realtime.Authorize)

		admin := api.Group("/admin")
		{
			ao := admin.Group("/orders")
			{
				ao.GET("", middleware.RequirePermission(handlers.PermOrderView), d.Admin.List)
				ao.GET("/:id", middleware.RequirePermission(handlers.PermOrderView), d.Admin.Detail)
				ao.POST("/:id/accept", middleware.RequirePermission(handlers.PermOrderAccept), d.Admin.Accept)
				ao.POST("/:id/verify-payment", middleware.RequirePermission(handlers.PermOrderVerifyPayment), d.Admin.VerifyPayment)
				ao.POST("/:id/reject-payment", middleware.RequirePermission(handlers.PermOrderVerifyPayment), d.Admin.RejectPayment)
				ao.POST("/:id/out-for-delivery", middleware.RequirePermission(handlers.PermOrderDeliver), d.Admin.OutForDelivery)
				ao.POST("/:id/deliver", middleware.RequirePermission(handlers.PermOrderDeliver), d.Admin.Deliver)
				ao.POST("/:id/cancel", middleware.RequirePermission(handlers.PermOrderCancel), d.Admin.Cancel)
			}

			aa := admin.Group("/promptpay-accounts", middleware.RequirePermission(handlers.PermAccountManage))
			{
				aa.GET("", d.Accounts.List)
				aa.POST("", d.Accounts.Create)
				aa.POST("/:id/activate", d.Accounts.Activate)
				aa.POST("/:id/deactivate", d.Accounts.Deactivate)
			}
		}
	}

	// scheduler-facing, shared-secret auth
	r.POST("/internal/cleanup/run", d.Cleanup.Purge)

	return r
}
