package response

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/trpgsessionhub/server/pkg/apperror"
)

// GetUserID retrieves the authenticated user ID from the context.
func GetUserID(c *gin.Context) (uuid.UUID, error) {
	userIDStr, exists := c.Get("user_id")
	if !exists {
		return uuid.Nil, apperror.ErrUnauthorized
	}

	userID, err := uuid.Parse(userIDStr.(string))
	if err != nil {
		return uuid.Nil, apperror.ErrUnauthorized
	}

	return userID, nil
}

// Error writes a standardized error response carrying the stable kind.
func Error(c *gin.Context, err error) {
	code := apperror.MapErrorToStatus(err)

	if code == http.StatusInternalServerError {
		log.Printf("[Internal Error]: %v", err)
	}

	body := gin.H{
		"kind":  apperror.KindOf(err),
		"error": err.Error(),
	}

	var ae *apperror.AppError
	if errors.As(err, &ae) && len(ae.Fields) > 0 {
		body["fields"] = ae.Fields
	}

	c.JSON(code, body)
}
