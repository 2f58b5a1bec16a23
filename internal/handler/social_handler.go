package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/trpgsessionhub/server/internal/service"
	"github.com/trpgsessionhub/server/pkg/response"
)

type SocialHandler struct {
	social service.SocialService
	sheets service.SheetService
}

func NewSocialHandler(social service.SocialService, sheets service.SheetService) *SocialHandler {
	return &SocialHandler{social: social, sheets: sheets}
}

func (h *SocialHandler) CreateGroup(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	var input service.CreateGroupInput
	if !bindJSON(c, &input) {
		return
	}

	group, err := h.social.CreateGroup(c.Request.Context(), actorID, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, group)
}

func (h *SocialHandler) GetGroup(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	groupID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	group, err := h.social.GetGroup(c.Request.Context(), actorID, groupID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

func (h *SocialHandler) InviteToGroup(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	groupID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var input service.GroupInviteInput
	if !bindJSON(c, &input) {
		return
	}

	if err := h.social.InviteToGroup(c.Request.Context(), actorID, groupID, input); err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "invitation sent"})
}

func (h *SocialHandler) JoinGroup(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	groupID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	membership, err := h.social.JoinGroup(c.Request.Context(), actorID, groupID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, membership)
}

func (h *SocialHandler) SendFriendRequest(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	var input service.FriendRequestInput
	if !bindJSON(c, &input) {
		return
	}

	request, err := h.social.SendFriendRequest(c.Request.Context(), actorID, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, request)
}

func (h *SocialHandler) AcceptFriendRequest(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	requestID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.social.AcceptFriendRequest(c.Request.Context(), actorID, requestID); err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "friend request accepted"})
}

func (h *SocialHandler) CreateSheet(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	var input service.CreateSheetInput
	if !bindJSON(c, &input) {
		return
	}

	sheet, err := h.sheets.Create(c.Request.Context(), actorID, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, sheet)
}

func (h *SocialHandler) ListSheets(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}

	sheets, err := h.sheets.ListOwn(c.Request.Context(), actorID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sheets})
}
