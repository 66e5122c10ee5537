package handlers

import (
	"net/http"

	"room-chat/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-metrics"
)

type MetricsHandler struct {
	sink *metrics.InmemSink
}

func NewMetricsHandler(sink *metrics.InmemSink) *MetricsHandler {
	return &MetricsHandler{sink: sink}
}

// Metrics dumps the in-memory metric intervals
func (h *MetricsHandler) Metrics(c *gin.Context) {
	summary, err := h.sink.DisplayMetrics(c.Writer, c.Request)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.NewError(response.ErrCodeInternal, err.Error()))
		return
	}
	c.JSON(http.StatusOK, summary)
}
