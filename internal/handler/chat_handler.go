// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"pagepal-go/internal/model"
	"pagepal-go/internal/service"
	"pagepal-go/pkg/log"
	"pagepal-go/pkg/page"
	"pagepal-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// ChatHandler 负责处理问答请求，包括一次性应答和 WebSocket 流式应答。
type ChatHandler struct {
	chatService service.ChatService
	userService service.UserService
	jwtManager  *token.JWTManager
	// 每连接停止标志
	stopFlags sync.Map
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, userService service.UserService, jwtManager *token.JWTManager) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		userService: userService,
		jwtManager:  jwtManager,
	}
}

// ChatRequest 定义了问答 API 的请求体结构。
// source 字段是来源类型（"webpage" / "youtube video"），不是 URL。
type ChatRequest struct {
	Message   string `json:"message"`
	URL       string `json:"url"`
	Source    string `json:"source"`
	UserID    uint   `json:"userId"`
	SessionID uint   `json:"sessionId"`
}

// Send 处理 POST /api/chat 请求，返回 {message} 形状的响应。
// 身份以认证中间件注入的用户为准，请求体中的 userId 仅为兼容保留。
func (h *ChatHandler) Send(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Send: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	user := c.MustGet("user").(*model.User)
	input := service.SendInput{
		Message:   req.Message,
		URL:       req.URL,
		Kind:      req.Source,
		SessionID: req.SessionID,
	}
	if input.Kind == "" {
		input.Kind = page.Classify(req.URL)
	}

	reply, err := h.chatService.Send(c.Request.Context(), input, user)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoActiveSession):
			c.JSON(http.StatusBadRequest, gin.H{"error": "没有可用的会话"})
		case errors.Is(err, service.ErrReplyInFlight):
			c.JSON(http.StatusConflict, gin.H{"error": "该会话已有回复在途"})
		default:
			log.Errorf("Send: 问答处理失败 (session=%d): %v", req.SessionID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "问答处理失败"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": reply})
}

// Stream 处理一个传入的 WebSocket 连接，逐块下发助手回复。
// token 通过路径参数传递，因为浏览器 WebSocket API 无法设置请求头。
func (h *ChatHandler) Stream(c *gin.Context) {
	tokenString := c.Param("token")
	claims, err := h.jwtManager.VerifyToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的 token", "data": nil})
		return
	}

	user, err := h.userService.GetProfile(claims.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "无法获取用户信息", "data": nil})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立，用户: %s", claims.Username)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}

		var req ChatRequest
		if err := json.Unmarshal(message, &req); err != nil {
			log.Warnf("无法解析 WebSocket 消息: %v, value: %s", err, string(message))
			h.writeStreamError(conn, "无效的消息格式")
			continue
		}

		// 停止指令: {"type":"stop"} 置位当前连接的停止标志
		var ctrl struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(message, &ctrl) == nil && ctrl.Type == "stop" {
			h.stopFlags.Store(connKey(conn), true)
			resp := map[string]interface{}{
				"type":      "stop",
				"message":   "响应已停止",
				"timestamp": time.Now().UnixMilli(),
			}
			b, _ := json.Marshal(resp)
			_ = conn.WriteMessage(websocket.TextMessage, b)
			continue
		}

		input := service.SendInput{
			Message:   req.Message,
			URL:       req.URL,
			Kind:      req.Source,
			SessionID: req.SessionID,
		}
		if input.Kind == "" {
			input.Kind = page.Classify(req.URL)
		}

		shouldStop := func() bool {
			v, ok := h.stopFlags.Load(connKey(conn))
			return ok && v.(bool)
		}
		// 清除上一轮遗留的停止标志
		h.stopFlags.Delete(connKey(conn))

		if err := h.chatService.StreamReply(c.Request.Context(), input, user, conn, shouldStop); err != nil {
			switch {
			case errors.Is(err, service.ErrNoActiveSession):
				h.writeStreamError(conn, "没有可用的会话")
			case errors.Is(err, service.ErrReplyInFlight):
				h.writeStreamError(conn, "该会话已有回复在途")
			default:
				log.Errorf("处理流式响应失败: %v", err)
				h.writeStreamError(conn, service.ErrorReplyText)
			}
		}
	}

	h.stopFlags.Delete(connKey(conn))
}

// writeStreamError 以统一 JSON 形状回发错误通知。
func (h *ChatHandler) writeStreamError(conn *websocket.Conn, msg string) {
	resp := map[string]interface{}{
		"type":      "error",
		"message":   msg,
		"timestamp": time.Now().UnixMilli(),
	}
	b, _ := json.Marshal(resp)
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		log.Warnf("回发 WebSocket 错误通知失败: %v", err)
	}
}

// connKey 用连接指针标识一个 WebSocket 连接。
func connKey(conn *websocket.Conn) string {
	return fmt.Sprintf("%p", conn)
}
