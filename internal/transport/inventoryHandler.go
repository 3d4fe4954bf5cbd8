package transport

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ds124wfegd/parking/internal/entity"
	"github.com/ds124wfegd/parking/internal/service"
)

type InventoryHandler struct {
	inventoryService service.InventoryService
}

func NewInventoryHandler(inventoryService service.InventoryService) *InventoryHandler {
	return &InventoryHandler{inventoryService: inventoryService}
}

// CreateCity создает город, имя нормализуется в сервисе
func (h *InventoryHandler) CreateCity(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "city name is required")
		return
	}

	city, err := h.inventoryService.CreateCity(c.Request.Context(), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, city)
}

func (h *InventoryHandler) ListCities(c *gin.Context) {
	cities, err := h.inventoryService.ListCities(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, cities)
}

// DeleteCity removes the city with all of its areas and slots.
func (h *InventoryHandler) DeleteCity(c *gin.Context) {
	if err := h.inventoryService.DeleteCity(c.Request.Context(), c.Param("name")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "city deleted"})
}

func (h *InventoryHandler) CreateArea(c *gin.Context) {
	var req service.CreateAreaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "city and area name are required")
		return
	}

	area, err := h.inventoryService.CreateArea(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, area)
}

func (h *InventoryHandler) ListAreas(c *gin.Context) {
	areas, err := h.inventoryService.ListAreas(c.Request.Context(), c.Query("city"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, areas)
}

func (h *InventoryHandler) DeleteArea(c *gin.Context) {
	if err := h.inventoryService.DeleteArea(c.Request.Context(), c.Param("city"), c.Param("name")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "area deleted"})
}

func (h *InventoryHandler) CreateSlot(c *gin.Context) {
	var req service.CreateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	slot, err := h.inventoryService.CreateSlot(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, slot)
}

// ListSlots serves both the user listing and the admin one; each slot carries
// its computed bookable flag.
func (h *InventoryHandler) ListSlots(c *gin.Context) {
	slots, err := h.inventoryService.ListSlots(c.Request.Context(), entity.SlotFilter{
		City: c.Query("city"),
		Area: c.Query("area"),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, slots)
}

// ToggleSlot включает или выключает место
func (h *InventoryHandler) ToggleSlot(c *gin.Context) {
	slotID, ok := idParam(c, "id")
	if !ok {
		return
	}

	slot, err := h.inventoryService.ToggleSlot(c.Request.Context(), slotID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, slot)
}

// SetSlotStatus задает статус места вручную
func (h *InventoryHandler) SetSlotStatus(c *gin.Context) {
	slotID, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "status is required")
		return
	}

	slot, err := h.inventoryService.SetSlotStatus(c.Request.Context(), slotID, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, slot)
}

// DeleteSlot удаляет место, занятое место удалить нельзя
func (h *InventoryHandler) DeleteSlot(c *gin.Context) {
	slotID, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.inventoryService.DeleteSlot(c.Request.Context(), slotID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "slot deleted"})
}
