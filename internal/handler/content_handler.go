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

// ContentHandler 负责处理页面内容准备（抓取、入队向量化）的请求。
// 这是插件端扩展打开页面后调用的第一个接口。
type ContentHandler struct {
	contentService service.ContentService
	sessionService service.SessionService
}

// NewContentHandler 创建一个新的 ContentHandler 实例。
func NewContentHandler(contentService service.ContentService, sessionService service.SessionService) *ContentHandler {
	return &ContentHandler{
		contentService: contentService,
		sessionService: sessionService,
	}
}

// PrepareRequest 定义了页面准备 API 的请求体结构。
type PrepareRequest struct {
	URL string `json:"url" binding:"required"`
}

// Prepare 处理 POST /api/embeddings 请求。
// 抓取页面正文、入队向量化任务，并确保当天存在与该来源绑定的会话。
// 响应体保持插件端约定的 {success, title} 形状。
func (h *ContentHandler) Prepare(c *gin.Context) {
	var req PrepareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Prepare: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false})
		return
	}

	user := c.MustGet("user").(*model.User)

	title, err := h.contentService.Prepare(c.Request.Context(), req.URL, user.ID)
	if err != nil {
		if errors.Is(err, service.ErrEmptyPage) {
			log.Warnf("Prepare: 页面正文为空 (url=%s)", req.URL)
		} else {
			log.Errorf("Prepare: 页面准备失败 (url=%s): %v", req.URL, err)
		}
		c.JSON(http.StatusBadGateway, gin.H{"success": false})
		return
	}

	// 页面准备成功后确保会话存在。Create 内部会优先复用当天的同来源会话。
	if _, err := h.sessionService.Create(req.URL, title, user.ID); err != nil {
		log.Errorf("Prepare: 创建会话失败 (url=%s, user=%d): %v", req.URL, user.ID, err)
		c.JSON(http.StatusBadGateway, gin.H{"success": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "title": title})
}
