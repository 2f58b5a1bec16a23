package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/trpgsessionhub/server/internal/service"
	"github.com/trpgsessionhub/server/pkg/response"
)

type SessionHandler struct {
	sessions    service.SessionService
	invitations service.InvitationService
}

func NewSessionHandler(sessions service.SessionService, invitations service.InvitationService) *SessionHandler {
	return &SessionHandler{sessions: sessions, invitations: invitations}
}

func (h *SessionHandler) Create(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	var input service.CreateSessionInput
	if !bindJSON(c, &input) {
		return
	}

	session, err := h.sessions.Create(c.Request.Context(), actorID, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (h *SessionHandler) List(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	sessions, err := h.sessions.List(c.Request.Context(), actorID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sessions})
}

func (h *SessionHandler) Get(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	sessionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	session, err := h.sessions.Get(c.Request.Context(), actorID, sessionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) GetShared(c *gin.Context) {
	session, err := h.sessions.GetByShareToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) Update(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	sessionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var input service.UpdateSessionInput
	if !bindJSON(c, &input) {
		return
	}

	session, err := h.sessions.Update(c.Request.Context(), actorID, sessionID, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) Delete(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	sessionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.sessions.Delete(c.Request.Context(), actorID, sessionID); err != nil {
		response.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Join answers 201 for a fresh roster entry and 200 for an idempotent repeat.
func (h *SessionHandler) Join(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	sessionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var input service.JoinSessionInput
	if c.Request.ContentLength > 0 {
		if !bindJSON(c, &input) {
			return
		}
	}

	participant, created, err := h.sessions.Join(c.Request.Context(), actorID, sessionID, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, participant)
}

func (h *SessionHandler) AssignPlayer(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	sessionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var input service.AssignPlayerInput
	if !bindJSON(c, &input) {
		return
	}

	participant, err := h.sessions.AssignPlayer(c.Request.Context(), actorID, sessionID, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, participant)
}

func (h *SessionHandler) UpdateParticipant(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	sessionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	participantID, ok := pathUUID(c, "participant_id")
	if !ok {
		return
	}
	var input service.UpdateParticipantInput
	if !bindJSON(c, &input) {
		return
	}

	participant, err := h.sessions.UpdateParticipant(c.Request.Context(), actorID, sessionID, participantID, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, participant)
}

func (h *SessionHandler) RemoveParticipant(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	sessionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	participantID, ok := pathUUID(c, "participant_id")
	if !ok {
		return
	}

	if err := h.sessions.RemoveParticipant(c.Request.Context(), actorID, sessionID, participantID); err != nil {
		response.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SessionHandler) Invite(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	sessionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var input service.InviteInput
	if !bindJSON(c, &input) {
		return
	}

	invitation, err := h.invitations.Invite(c.Request.Context(), actorID, sessionID, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, invitation)
}

func (h *SessionHandler) AcceptInvitation(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	invitationID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	participant, err := h.invitations.Accept(c.Request.Context(), actorID, invitationID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, participant)
}

func (h *SessionHandler) DeclineInvitation(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	invitationID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.invitations.Decline(c.Request.Context(), actorID, invitationID); err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "invitation declined"})
}
