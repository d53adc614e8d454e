package handlers

import (
	"net/http"

	"edu-notify/internal/websocket"
	"edu-notify/pkg/auth"

	"github.com/gin-gonic/gin"
	ws "github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type WebSocketHandler struct {
	registry   *websocket.Registry
	jwtManager *auth.JWTManager
	upgrader   ws.Upgrader
	sendBuffer int
	log        logrus.FieldLogger
}

func NewWebSocketHandler(registry *websocket.Registry, jwtManager *auth.JWTManager, allowedOrigins []string, sendBuffer int, log logrus.FieldLogger) *WebSocketHandler {
	return &WebSocketHandler{
		registry:   registry,
		jwtManager: jwtManager,
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		sendBuffer: sendBuffer,
		log:        log.WithField("component", "websocket"),
	}
}

// originChecker accepts requests without an Origin header (non-browser
// clients) and browser requests from an allowed origin.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// HandleWebSocket authenticates the ?token= credential before upgrading. A
// rejected connect never touches the registry.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Token is required",
		})
		return
	}

	claims, err := h.jwtManager.ValidateToken(token)
	if err != nil {
		h.log.WithField("ip", c.ClientIP()).Warn("websocket connect with invalid token")
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Invalid token",
		})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	session := websocket.NewSession(conn, claims.UserID, h.registry, h.sendBuffer, h.log)
	session.Start()
}
