package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/trpgsessionhub/server/internal/service"
	"github.com/trpgsessionhub/server/pkg/apperror"
	"github.com/trpgsessionhub/server/pkg/response"
)

type HandoutHandler struct {
	service service.HandoutService
}

func NewHandoutHandler(service service.HandoutService) *HandoutHandler {
	return &HandoutHandler{service: service}
}

func (h *HandoutHandler) Create(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	sessionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var input service.CreateHandoutInput
	if !bindJSON(c, &input) {
		return
	}

	handout, err := h.service.Create(c.Request.Context(), actorID, sessionID, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, handout)
}

// BulkCreate returns 201 with per-item results when at least one item made it,
// 400 bulk_all_failed when none did.
func (h *HandoutHandler) BulkCreate(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	sessionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var body struct {
		Handouts []service.CreateHandoutInput `json:"handouts" binding:"required,min=1,dive"`
	}
	if !bindJSON(c, &body) {
		return
	}

	results, err := h.service.BulkCreate(c.Request.Context(), actorID, sessionID, body.Handouts)
	if err != nil {
		if apperror.KindOf(err) == apperror.KindBulkAllFailed {
			c.JSON(http.StatusBadRequest, gin.H{
				"kind":    apperror.KindBulkAllFailed,
				"error":   err.Error(),
				"results": results,
			})
			return
		}
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"results": results})
}

func (h *HandoutHandler) ListBySession(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	sessionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	handouts, err := h.service.ListBySession(c.Request.Context(), actorID, sessionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": handouts})
}

func (h *HandoutHandler) Get(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	handoutID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	handout, err := h.service.Get(c.Request.Context(), actorID, handoutID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handout)
}

func (h *HandoutHandler) Update(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	handoutID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var input service.UpdateHandoutInput
	if !bindJSON(c, &input) {
		return
	}

	handout, err := h.service.Update(c.Request.Context(), actorID, handoutID, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handout)
}

func (h *HandoutHandler) ToggleVisibility(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	handoutID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	handout, err := h.service.ToggleVisibility(c.Request.Context(), actorID, handoutID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handout)
}

func (h *HandoutHandler) Delete(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	handoutID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), actorID, handoutID); err != nil {
		response.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
