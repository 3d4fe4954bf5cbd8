package transport

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ds124wfegd/parking/internal/entity"
	"github.com/ds124wfegd/parking/internal/service"
	"github.com/ds124wfegd/parking/internal/transport/middleware"
)

type RouterConfig struct {
	AllowedOrigins    []string
	RequestTimeout    time.Duration
	BookingsPerSecond float64
	BookingBurst      int
}

type Handlers struct {
	Auth      *AuthHandler
	Inventory *InventoryHandler
	Booking   *BookingHandler
	Report    *ReportHandler
}

func NewHandlers(services *service.Services) *Handlers {
	return &Handlers{
		Auth:      NewAuthHandler(services.Auth),
		Inventory: NewInventoryHandler(services.Inventory),
		Booking:   NewBookingHandler(services.Bookings),
		Report:    NewReportHandler(services.Reports),
	}
}

func InitRoutes(cfg RouterConfig, h *Handlers, verifier middleware.TokenVerifier) *gin.Engine {
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.AllowedOrigins))
	router.Use(middleware.Logger())
	router.Use(middleware.Timeout(cfg.RequestTimeout))

	bookingLimiter := middleware.NewRateLimiter(cfg.BookingsPerSecond, cfg.BookingBurst)

	// Публичные маршруты
	router.POST("/register", h.Auth.Register)
	router.POST("/login", h.Auth.Login)

	authed := router.Group("", middleware.Authenticate(verifier))
	{
		authed.GET("/slots", h.Inventory.ListSlots)

		// Bookings, создание ограничено по частоте
		bookings := authed.Group("/bookings")
		{
			bookings.POST("", bookingLimiter.Limit(), h.Booking.CreateBooking)
			bookings.GET("/my", h.Booking.GetMyBookings)
			bookings.GET("/active", h.Booking.GetActiveBooking)
			bookings.PUT("/:id/extend", h.Booking.ExtendBooking)
			bookings.PUT("/:id/cancel", h.Booking.CancelBooking)
		}

		// Admin routes
		admin := authed.Group("/admin", middleware.RequireRole(entity.RoleAdmin))
		{
			admin.POST("/cities", h.Inventory.CreateCity)
			admin.GET("/cities", h.Inventory.ListCities)
			admin.DELETE("/cities/:name", h.Inventory.DeleteCity)

			admin.POST("/areas", h.Inventory.CreateArea)
			admin.GET("/areas", h.Inventory.ListAreas)
			admin.DELETE("/areas/:city/:name", h.Inventory.DeleteArea)

			admin.POST("/slots", h.Inventory.CreateSlot)
			admin.GET("/slots", h.Inventory.ListSlots)
			admin.PUT("/slots/:id/toggle", h.Inventory.ToggleSlot)
			admin.PUT("/slots/:id/status", h.Inventory.SetSlotStatus)
			admin.DELETE("/slots/:id", h.Inventory.DeleteSlot)

			admin.GET("/bookings", h.Booking.ListBookings)
			admin.PUT("/bookings/:id/cancel", h.Booking.AdminCancelBooking)

			admin.GET("/reports", h.Report.GetReport)
			admin.GET("/reports/export", h.Report.ExportCSV)
			admin.GET("/reports/monthly", h.Report.GetMonthlyReport)
		}
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC(),
		})
	})

	return router
}

// SuccessResponse wraps list responses that carry paging metadata.
type SuccessResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// bookingPreconditions are conflicts reported as 400, the way booking
// clients expect them.
var bookingPreconditions = []error{
	entity.ErrSlotUnavailable,
	entity.ErrActiveBookingExists,
}

func statusFor(err error) int {
	for _, target := range bookingPreconditions {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}

	switch {
	case errors.Is(err, entity.ErrValidation), errors.Is(err, entity.ErrInvalidState):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, entity.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, entity.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// respondError reports the domain message of err. Unclassified errors are
// logged and hidden behind a generic message.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	message := err.Error()

	var domainErr *entity.Error
	if errors.As(err, &domainErr) {
		message = domainErr.Message
	}

	if status == http.StatusInternalServerError {
		logrus.WithError(err).WithField("path", c.FullPath()).Error("Unhandled error")
		message = "internal server error"
	}

	c.JSON(status, ErrorResponse{Success: false, Error: message})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Success: false, Error: message})
}

// caller is only called behind middleware.Authenticate.
func caller(c *gin.Context) entity.Identity {
	identity, _ := middleware.IdentityFrom(c)
	return identity
}
