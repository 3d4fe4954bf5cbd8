package transport

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ds124wfegd/parking/internal/entity"
	"github.com/ds124wfegd/parking/internal/service"
)

type BookingHandler struct {
	bookingService service.BookingService
}

func NewBookingHandler(bookingService service.BookingService) *BookingHandler {
	return &BookingHandler{bookingService: bookingService}
}

// CreateBooking reserves a slot and returns the booking with the mock payment result.
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	var req service.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	receipt, err := h.bookingService.CreateBooking(c.Request.Context(), caller(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, receipt)
}

// ExtendBooking продлевает бронирование на целое число часов
func (h *BookingHandler) ExtendBooking(c *gin.Context) {
	// Получаем ID бронирования из пути
	bookingID, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req service.ExtendBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "extraHours must be a whole number of hours")
		return
	}

	booking, err := h.bookingService.ExtendBooking(c.Request.Context(), caller(c), bookingID, req.ExtraHours)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// CancelBooking отменяет бронирование текущего пользователя
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	bookingID, ok := idParam(c, "id")
	if !ok {
		return
	}

	// Тело запроса необязательно, причина может отсутствовать
	var req service.CancelBookingRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		badRequest(c, err.Error())
		return
	}

	booking, err := h.bookingService.CancelBooking(c.Request.Context(), caller(c), bookingID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "booking cancelled", "booking": booking})
}

// AdminCancelBooking отменяет бронирование от имени администратора
func (h *BookingHandler) AdminCancelBooking(c *gin.Context) {
	bookingID, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req service.CancelBookingRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		badRequest(c, err.Error())
		return
	}

	booking, err := h.bookingService.AdminCancelBooking(c.Request.Context(), caller(c), bookingID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "booking cancelled", "booking": booking})
}

// GetMyBookings возвращает бронирования текущего пользователя
func (h *BookingHandler) GetMyBookings(c *gin.Context) {
	bookings, err := h.bookingService.GetUserBookings(c.Request.Context(), caller(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, bookings)
}

// GetActiveBooking answers 404 when the caller holds no active booking.
func (h *BookingHandler) GetActiveBooking(c *gin.Context) {
	booking, err := h.bookingService.GetActiveBooking(c.Request.Context(), caller(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// ListBookings returns every booking matching the query filters, newest first.
func (h *BookingHandler) ListBookings(c *gin.Context) {
	filter, err := bookingFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}

	bookings, err := h.bookingService.ListBookings(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Bookings retrieved successfully",
		Data:    bookings,
		Meta: gin.H{
			"count":  len(bookings),
			"limit":  filter.Limit,
			"offset": filter.Offset,
		},
	})
}

// bookingFilter собирает фильтр из query параметров
func bookingFilter(c *gin.Context) (entity.BookingFilter, error) {
	filter := entity.BookingFilter{
		City: entity.NormalizeName(c.Query("city")),
		Area: entity.NormalizeName(c.Query("area")),
	}

	// Получаем фильтры по сумме и датам
	var err error
	if filter.MinAmount, err = floatQuery(c, "minAmount"); err != nil {
		return filter, err
	}
	if filter.StartFrom, err = timeQuery(c, "from", false); err != nil {
		return filter, err
	}
	if filter.StartTo, err = timeQuery(c, "to", true); err != nil {
		return filter, err
	}
	if filter.UserID, err = int64Query(c, "userId"); err != nil {
		return filter, err
	}
	// Получаем параметры пагинации
	if filter.Limit, err = intQuery(c, "limit"); err != nil {
		return filter, err
	}
	if filter.Offset, err = intQuery(c, "offset"); err != nil {
		return filter, err
	}

	// Получаем фильтр по статусу
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		if filter.Status, err = entity.ParseBookingStatus(status); err != nil {
			return filter, err
		}
	}
	return filter, nil
}
