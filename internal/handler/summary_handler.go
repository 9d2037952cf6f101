// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"pagepal-go/internal/model"
	"pagepal-go/internal/service"
	"pagepal-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// SummaryHandler 负责处理会话摘要请求。
type SummaryHandler struct {
	summaryService service.SummaryService
}

// NewSummaryHandler 创建一个新的 SummaryHandler 实例。
func NewSummaryHandler(summaryService service.SummaryService) *SummaryHandler {
	return &SummaryHandler{summaryService: summaryService}
}

// SummaryRequest 定义了会话摘要 API 的请求体结构。
type SummaryRequest struct {
	SessionID uint `json:"sessionId" binding:"required"`
}

// Summarize 处理 POST /api/summary 请求，返回 {summary} 形状的响应。
func (h *SummaryHandler) Summarize(c *gin.Context) {
	var req SummaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Summarize: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载：sessionId 不能为空"})
		return
	}

	user := c.MustGet("user").(*model.User)
	summary, err := h.summaryService.Summarize(c.Request.Context(), req.SessionID, user)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "会话不存在"})
			return
		}
		log.Errorf("Summarize: 生成摘要失败 (session=%d): %v", req.SessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "生成摘要失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"summary": summary})
}
