package api

import (
	"log"
	stdhttp "net/http"

	intconfig "matsched/internal/config"
	"matsched/internal/domain"
	h "matsched/internal/http/handlers"
	"matsched/internal/http/middleware"

	"github.com/gin-gonic/gin"
)

func NewRouter(env intconfig.Env, hs *h.Handlers) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Logger(), gin.Recovery(), middleware.CORS(env.CORSOrigins))

	if err := r.SetTrustedProxies(nil); err != nil {
		log.Printf("warning: failed to set trusted proxies: %v", err)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(stdhttp.StatusNotFound, gin.H{
			"error":  "route not found",
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		})
	})

	r.GET("/ws", hs.ServeWS)

	admin := middleware.RequireRoles(domain.RoleAdmin)
	driver := middleware.RequireRoles(domain.RoleDriver)
	anyone := middleware.RequireRoles(domain.RolePassenger, domain.RoleDriver, domain.RoleAdmin)

	api := r.Group("/api")
	api.Use(middleware.Auth(hs.Auth.Parse))
	{
		api.GET("/health", hs.Health)
		api.GET("/db-check", hs.DBCheck)
		api.GET("/jobs", admin, hs.JobStats)
		api.POST("/jobs/:name/run", admin, hs.RunJob)

		// Auth
		auth := api.Group("/auth")
		auth.POST("/login", hs.Login)
		auth.POST("/register", hs.Register)

		// Public catalogue
		api.GET("/routes/:id", hs.GetRoute)
		api.GET("/routes/:id/quote", hs.QuoteFare)
		api.GET("/schedules/search", hs.SearchSchedules)
		api.GET("/schedules/:id", hs.GetSchedule)

		// Bookings
		bookings := api.Group("/bookings")
		bookings.POST("", hs.CreateBooking)
		bookings.GET("/:id", anyone, hs.GetBooking)
		bookings.GET("/:id/ticket", anyone, hs.GetTicketPDF)
		bookings.POST("/:id/confirm", admin, hs.ConfirmBooking)

		// Payments
		payments := api.Group("/payments")
		payments.POST("/mpesa/callback", hs.MpesaCallback)

		// Operator administration
		adm := api.Group("/admin", admin)
		adm.GET("/routes", hs.ListRoutes)
		adm.POST("/routes", hs.CreateRoute)
		adm.PUT("/routes/:id", hs.UpdateRoute)
		adm.DELETE("/routes/:id", hs.DeleteRoute)
		adm.GET("/vehicles", hs.ListVehicles)
		adm.POST("/vehicles", hs.CreateVehicle)
		adm.GET("/vehicles/:id", hs.GetVehicle)
		adm.PUT("/vehicles/:id", hs.UpdateVehicle)
		adm.GET("/schedules", hs.TodaySchedules)
		adm.GET("/schedules/past", hs.PastSchedules)
		adm.POST("/schedules", hs.CreateSchedule)
		adm.POST("/schedules/:id/cancel", hs.CancelSchedule)
		adm.GET("/queue", hs.ListQueue)

		// Drivers
		drv := api.Group("/driver")
		drv.POST("/queue", driver, hs.JoinQueue)
		drv.GET("/queue", driver, hs.QueueStatus)
		drv.GET("/schedule", driver, hs.DriverSchedule)
		drv.POST("/trips/:id/start", middleware.RequireRoles(domain.RoleDriver, domain.RoleAdmin), hs.StartTrip)
		drv.POST("/trips/:id/complete", middleware.RequireRoles(domain.RoleDriver, domain.RoleAdmin), hs.CompleteTrip)
		drv.GET("/bookings/:id/verify", middleware.RequireRoles(domain.RoleDriver, domain.RoleAdmin), hs.VerifyBooking)
	}

	return r
}
