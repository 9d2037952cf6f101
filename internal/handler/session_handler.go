// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"pagepal-go/internal/model"
	"pagepal-go/internal/service"
	"pagepal-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// SessionHandler 负责处理会话查询相关的 API 请求。
type SessionHandler struct {
	sessionService service.SessionService
}

// NewSessionHandler 创建一个新的 SessionHandler 实例。
func NewSessionHandler(sessionService service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// Resolve 根据来源 URL 解析当前应使用的会话。
// 命中当天的既有会话时返回其 id，否则告知调用方需要新建。
func (h *SessionHandler) Resolve(c *gin.Context) {
	source := c.Query("source")
	if source == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "缺少 source 查询参数",
		})
		return
	}

	user := c.MustGet("user").(*model.User)
	session, isNew, err := h.sessionService.Resolve(source, user.ID)
	if err != nil {
		log.Errorf("Resolve: 解析会话失败 (user=%d): %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "解析会话失败",
		})
		return
	}

	data := gin.H{"isNew": isNew}
	if session != nil {
		data["sessionId"] = session.ID
		data["title"] = session.Title
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": data})
}

// List 返回当前用户的会话历史，按创建时间倒序。
func (h *SessionHandler) List(c *gin.Context) {
	user := c.MustGet("user").(*model.User)
	sessions, err := h.sessionService.History(user.ID)
	if err != nil {
		log.Errorf("List: 查询会话历史失败 (user=%d): %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "查询会话历史失败",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": sessions})
}

// Messages 返回指定会话的全部消息快照，按创建时间正序。
func (h *SessionHandler) Messages(c *gin.Context) {
	sessionID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的会话 id",
		})
		return
	}

	user := c.MustGet("user").(*model.User)
	messages, err := h.sessionService.Messages(uint(sessionID), user.ID)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    http.StatusNotFound,
				"message": "会话不存在",
			})
			return
		}
		log.Errorf("Messages: 查询会话消息失败 (session=%d, user=%d): %v", sessionID, user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "查询会话消息失败",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": messages})
}
