package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"wedsite/internal/auth"
	"wedsite/internal/tasks"
)

const (
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 5 * time.Second
	wsAuthTimeout  = 10 * time.Second
)

// wsAuthError carries the close text sent to the client.
type wsAuthError struct {
	reason string
	err    error
}

func (e *wsAuthError) Error() string {
	if e.err != nil {
		return e.reason + ": " + e.err.Error()
	}
	return e.reason
}

func (e *wsAuthError) Unwrap() error { return e.err }

// WsHandler 将站点发布结果推送给已登录的编辑器。
type WsHandler struct {
	redisClient    redis.UniversalClient
	authService    *auth.AuthService
	logger         *slog.Logger
	upgrader       websocket.Upgrader
	allowedOrigins []string
}

// NewWsHandler 构造 WebSocket 处理器。
func NewWsHandler(redisClient redis.UniversalClient, authService *auth.AuthService, logger *slog.Logger, allowedOrigins []string) *WsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &WsHandler{
		redisClient:    redisClient,
		authService:    authService,
		logger:         logger,
		allowedOrigins: allowedOrigins,
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.originAllowed}
	return h
}

func (h *WsHandler) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(h.allowedOrigins) == 0 {
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
	return slices.Contains(h.allowedOrigins, origin)
}

type wsAuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// authenticate 校验首条消息，返回用户 ID。
func (h *WsHandler) authenticate(message []byte) (uint, error) {
	var msg wsAuthMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return 0, &wsAuthError{reason: "invalid auth payload", err: err}
	}
	if msg.Type != "auth" || msg.Token == "" {
		return 0, &wsAuthError{reason: "auth required"}
	}
	claims, err := h.authService.ValidateTokenOfType(msg.Token, auth.TokenTypeAccess)
	switch {
	case errors.Is(err, auth.ErrWrongTokenType):
		return 0, &wsAuthError{reason: "access token required", err: err}
	case errors.Is(err, auth.ErrTokenExpired):
		return 0, &wsAuthError{reason: "token expired", err: err}
	case err != nil:
		return 0, &wsAuthError{reason: "unauthorized", err: err}
	}
	if claims.MustChangePassword {
		return 0, &wsAuthError{reason: "password change required"}
	}
	return claims.UserID, nil
}

// HandleConnection 升级连接，等待鉴权后订阅该用户的发布通知。
func (h *WsHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("upgrade websocket failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	log := h.logger.With(slog.String("client_ip", c.ClientIP()))

	_ = conn.SetReadDeadline(time.Now().Add(wsAuthTimeout))
	_, first, err := conn.ReadMessage()
	if err != nil {
		log.Info("websocket closed before auth", slog.Any("error", err))
		return
	}
	userID, err := h.authenticate(first)
	if err != nil {
		var authErr *wsAuthError
		reason := "unauthorized"
		if errors.As(err, &authErr) {
			reason = authErr.reason
		}
		writeClose(conn, websocket.ClosePolicyViolation, reason)
		log.Warn("websocket authentication failed", slog.Any("error", err))
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	log = log.With(slog.Uint64("user_id", uint64(userID)))
	log.Info("websocket authenticated")

	errCh := make(chan error, 2)
	go h.readLoop(ctx, conn, errCh)
	go h.subscribeLoop(ctx, conn, userID, errCh, log)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			log.Info("websocket connection closed", slog.Any("error", err))
		} else {
			log.Info("websocket connection closed")
		}
	}
}

// readLoop 丢弃后续消息，仅用于发现客户端断开。
func (h *WsHandler) readLoop(ctx context.Context, conn *websocket.Conn, errCh chan<- error) {
	for {
		if ctx.Err() != nil {
			return
		}
		if _, _, err := conn.ReadMessage(); err != nil {
			errCh <- fmt.Errorf("read message: %w", err)
			return
		}
	}
}

func writeClose(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(wsWriteTimeout))
}

func (h *WsHandler) subscribeLoop(ctx context.Context, conn *websocket.Conn, userID uint, errCh chan<- error, log *slog.Logger) {
	channel := tasks.NotifyChannel(userID)
	pubsub := h.redisClient.Subscribe(ctx, channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		errCh <- fmt.Errorf("subscribe %s: %w", channel, err)
		return
	}
	log.Info("subscribed to redis channel", slog.String("channel", channel))

	if err := conn.WriteJSON(gin.H{"type": "ready"}); err != nil {
		errCh <- fmt.Errorf("write ready: %w", err)
		return
	}

	ch := pubsub.Channel()
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				errCh <- errors.New("pubsub channel closed")
				return
			}
			log.Debug("forwarding publish notification", slog.String("channel", channel))
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				errCh <- fmt.Errorf("write message: %w", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(wsWriteTimeout)); err != nil {
				errCh <- fmt.Errorf("write ping: %w", err)
				return
			}
		}
	}
}
