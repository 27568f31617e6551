package handler

import (
	"encoding/json"
	"net/http"

	"docqa-go/internal/middleware"
	"docqa-go/internal/service"
	"docqa-go/pkg/log"
	"docqa-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// ChatHandler 负责处理问答请求,包括阻塞式 HTTP 和 WebSocket 流式两种形态。
type ChatHandler struct {
	chatService service.ChatService
	jwtManager  *token.JWTManager
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, jwtManager *token.JWTManager) *ChatHandler {
	return &ChatHandler{chatService: chatService, jwtManager: jwtManager}
}

// Chat 处理阻塞式问答请求,一次性返回完整答案与引用来源。
func (h *ChatHandler) Chat(c *gin.Context) {
	claims := middleware.MustClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "无法获取用户信息"})
		return
	}

	var req service.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Question == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}
	log.Infof("[ChatHandler] 收到问答请求, 用户: %s, question: %s", claims.Username, req.Question)

	answer, err := h.chatService.Answer(c.Request.Context(), claims.UserID, req)
	if err != nil {
		log.Errorf("[ChatHandler] 问答服务返回错误, error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "问答失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "message": "success", "data": answer})
}

// HandleWS 处理一个传入的 WebSocket 连接。
// 浏览器的 WebSocket API 无法自定义请求头,token 通过路径参数传入。
func (h *ChatHandler) HandleWS(c *gin.Context) {
	tokenString := c.Param("token")
	claims, err := h.jwtManager.VerifyToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的 token", "data": nil})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Errorf("WebSocket 升级失败: %v", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立, 用户: %s", claims.Username)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}

		var req service.ChatRequest
		if err := json.Unmarshal(message, &req); err != nil || req.Question == "" {
			// 非 JSON 消息按纯文本问题处理
			req = service.ChatRequest{Question: string(message)}
		}
		log.Infof("[ChatHandler] 收到 WebSocket 问题, 用户: %s, question: %s", claims.Username, req.Question)

		if err := h.chatService.StreamAnswer(c.Request.Context(), claims.UserID, req, conn); err != nil {
			log.Errorf("[ChatHandler] 流式问答失败, error: %v", err)
			errPayload, _ := json.Marshal(gin.H{"type": "error", "message": "问答失败"})
			if werr := conn.WriteMessage(websocket.TextMessage, errPayload); werr != nil {
				break
			}
		}
	}
}
