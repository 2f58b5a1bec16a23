package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/trpgsessionhub/server/internal/service"
	"github.com/trpgsessionhub/server/pkg/response"
)

type ScenarioHandler struct {
	service service.ScenarioService
}

func NewScenarioHandler(service service.ScenarioService) *ScenarioHandler {
	return &ScenarioHandler{service: service}
}

func (h *ScenarioHandler) Create(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	var input service.CreateScenarioInput
	if !bindJSON(c, &input) {
		return
	}

	scenario, err := h.service.Create(c.Request.Context(), actorID, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, scenario)
}

func (h *ScenarioHandler) Get(c *gin.Context) {
	scenarioID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	scenario, err := h.service.Get(c.Request.Context(), scenarioID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, scenario)
}

func (h *ScenarioHandler) Search(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	scenarios, err := h.service.Search(c.Request.Context(), c.Query("query"), limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": scenarios})
}

func (h *ScenarioHandler) Delete(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	scenarioID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), actorID, scenarioID); err != nil {
		response.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
