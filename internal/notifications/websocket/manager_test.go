package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carbon-scribe/marketplace/marketplace-backend/internal/apperrors"
	"carbon-scribe/marketplace/marketplace-backend/internal/auth"
	"carbon-scribe/marketplace/marketplace-backend/internal/notifications"
)

type stubVerifier map[string]auth.Caller

func (s stubVerifier) VerifyAccessToken(ctx context.Context, token string) (auth.Caller, error) {
	if c, ok := s[token]; ok {
		return c, nil
	}
	return auth.Caller{}, apperrors.Authentication("given token not valid for any token type")
}

func dial(t *testing.T, server *httptest.Server, query string) *gws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/marketplace" + query
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var greeting notifications.WebSocketMessage
	require.NoError(t, conn.ReadJSON(&greeting))
	require.Equal(t, notifications.WSMessageTypeStatus, greeting.Type)
	return conn
}

func readEvent(t *testing.T, conn *gws.Conn) notifications.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg notifications.WebSocketMessage
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, notifications.WSMessageTypeEvent, msg.Type)

	var evt notifications.Event
	require.NoError(t, json.Unmarshal(msg.Data, &evt))
	return evt
}

func TestLiveFeedRouting(t *testing.T) {
	gin.SetMode(gin.TestMode)

	seller := auth.Caller{UserID: uuid.New(), Role: auth.RoleSeller}
	manager := NewManager([]string{"*"}, zap.NewNop())
	defer manager.Close()

	router := gin.New()
	NewHandler(manager, stubVerifier{"seller-token": seller}, zap.NewNop()).RegisterRoutes(router)
	server := httptest.NewServer(router)
	defer server.Close()

	anonymous := dial(t, server, "")
	sellerConn := dial(t, server, "?token=seller-token")
	assert.Equal(t, 2, manager.GetConnectionCount())

	claimed := notifications.NewEvent(notifications.EventProceedsClaimed, seller.UserID)
	claimed.RecipientID = &seller.UserID
	require.NoError(t, manager.Deliver(context.Background(), claimed))

	sold := notifications.NewEvent(notifications.EventListingSold, uuid.New())
	require.NoError(t, manager.Deliver(context.Background(), sold))

	got := []uuid.UUID{readEvent(t, sellerConn).ID, readEvent(t, sellerConn).ID}
	assert.ElementsMatch(t, []uuid.UUID{claimed.ID, sold.ID}, got)
	assert.Equal(t, sold.ID, readEvent(t, anonymous).ID, "anonymous clients only see public events")
}

func TestLiveFeedRejectsBadToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	manager := NewManager([]string{"*"}, zap.NewNop())
	defer manager.Close()

	router := gin.New()
	NewHandler(manager, stubVerifier{}, zap.NewNop()).RegisterRoutes(router)
	server := httptest.NewServer(router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/marketplace?token=nope"
	_, resp, err := gws.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)
}
