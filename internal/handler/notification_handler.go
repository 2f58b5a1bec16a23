package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/trpgsessionhub/server/internal/model"
	"github.com/trpgsessionhub/server/internal/service"
	"github.com/trpgsessionhub/server/pkg/response"
)

type NotificationHandler struct {
	service service.NotificationService
}

func NewNotificationHandler(service service.NotificationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

func (h *NotificationHandler) List(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	unreadOnly := c.Query("unread") == "true"

	notifications, err := h.service.List(c.Request.Context(), actorID, unreadOnly, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}

	unread, err := h.service.UnreadCount(c.Request.Context(), actorID)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": notifications, "unread_count": unread})
}

func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}

	unread, err := h.service.UnreadCount(c.Request.Context(), actorID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread_count": unread})
}

func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	notificationID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.service.MarkAsRead(c.Request.Context(), actorID, notificationID); err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "marked as read"})
}

func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}

	if err := h.service.MarkAllAsRead(c.Request.Context(), actorID); err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "all marked as read"})
}

func (h *NotificationHandler) GetPreferences(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}

	prefs, err := h.service.GetPreferences(c.Request.Context(), actorID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, prefs)
}

func (h *NotificationHandler) UpdatePreferences(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	var prefs model.NotificationPreferences
	if !bindJSON(c, &prefs) {
		return
	}

	updated, err := h.service.UpdatePreferences(c.Request.Context(), actorID, prefs)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}
