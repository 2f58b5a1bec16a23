package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/trpgsessionhub/server/pkg/apperror"
	"github.com/trpgsessionhub/server/pkg/response"
	"github.com/trpgsessionhub/server/pkg/validator"
)

// bindJSON binds the request body and converts binding failures into the
// validation_error contract.
func bindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		response.Error(c, apperror.Validation(validator.FormatValidationError(err), validator.FieldErrors(err)))
		return false
	}
	return true
}

// pathUUID parses a UUID path parameter; unparsable IDs read as absent
// resources.
func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Error(c, apperror.ErrNotFound)
		return uuid.Nil, false
	}
	return id, true
}

// actor extracts the authenticated user from the context.
func actor(c *gin.Context) (uuid.UUID, bool) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.Error(c, err)
		return uuid.Nil, false
	}
	return userID, true
}
