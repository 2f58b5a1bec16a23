package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/trpgsessionhub/server/internal/service"
	"github.com/trpgsessionhub/server/pkg/apperror"
	"github.com/trpgsessionhub/server/pkg/response"
)

type AttachmentHandler struct {
	service service.AttachmentService
}

func NewAttachmentHandler(service service.AttachmentService) *AttachmentHandler {
	return &AttachmentHandler{service: service}
}

// Upload accepts a multipart form with a "file" part and an optional
// "description" field.
func (h *AttachmentHandler) Upload(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	handoutID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, apperror.New(apperror.KindValidationError, "a file part is required"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	var description *string
	if d := c.PostForm("description"); d != "" {
		description = &d
	}

	attachment, err := h.service.Upload(c.Request.Context(), actorID, handoutID, service.UploadAttachmentInput{
		Reader:      file,
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		SizeBytes:   fileHeader.Size,
		Description: description,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, attachment)
}

func (h *AttachmentHandler) ListByHandout(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	handoutID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	attachments, err := h.service.ListByHandout(c.Request.Context(), actorID, handoutID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": attachments})
}

func (h *AttachmentHandler) Get(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	attachmentID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	attachment, err := h.service.Get(c.Request.Context(), actorID, attachmentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, attachment)
}

func (h *AttachmentHandler) Delete(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	attachmentID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), actorID, attachmentID); err != nil {
		response.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
