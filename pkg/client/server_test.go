package client

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"edu-notify/internal/handlers"
	"edu-notify/internal/logger"
	"edu-notify/internal/services"
	"edu-notify/internal/store"
	"edu-notify/internal/websocket"
	"edu-notify/pkg/auth"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type usersDirectory []string

func (d usersDirectory) ActiveUserIDs(context.Context) ([]string, error)   { return d, nil }
func (d usersDirectory) EnrolledUserIDs(context.Context) ([]string, error) { return d, nil }

func (d usersDirectory) CourseExists(context.Context, string) (bool, error) { return false, nil }

func (d usersDirectory) CourseEnrolledUserIDs(context.Context, string) ([]string, error) {
	return nil, nil
}

type testServer struct {
	*httptest.Server
	registry *websocket.Registry
	jwt      *auth.JWTManager
}

func newTestServer(t *testing.T, users int) *testServer {
	t.Helper()

	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	var dir usersDirectory
	for i := 0; i < users; i++ {
		dir = append(dir, fmt.Sprintf("user-%03d", i))
	}

	log := logger.Discard()
	registry := websocket.NewRegistry()
	jwtManager := auth.NewJWTManager("client-test-secret", time.Hour)
	broadcaster := services.NewBroadcaster(services.NewAudienceResolver(dir), st, registry, services.NewMetrics(), 4, log)

	router := handlers.NewRouter(handlers.RouterDeps{
		Store:          st,
		Broadcaster:    broadcaster,
		Registry:       registry,
		JWTManager:     jwtManager,
		AllowedOrigins: []string{"*"},
		Version:        "test",
		Log:            log,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, registry: registry, jwt: jwtManager}
}

func (s *testServer) token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := s.jwt.GenerateToken(userID, userID+"@example.com", role)
	require.NoError(t, err)
	return tok
}

func (s *testServer) api(t *testing.T, userID, role string) *API {
	return NewAPI(s.URL, s.token(t, userID, role), 5*time.Second)
}

func (s *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
}
