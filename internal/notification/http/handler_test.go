package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/nekogravitycat/bookshare-backend/internal/notification"
)

// streamRecorder adds the CloseNotify support gin's Stream needs.
type streamRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *streamRecorder) CloseNotify() <-chan bool {
	return r.closed
}

func fakeAuth(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID != "" {
			c.Set("userID", userID)
		}
		c.Next()
	}
}

func TestStreamSendsConnectThenNotifications(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := notification.NewHub(nil)
	router := gin.New()
	RegisterRoutes(router.Group("/v1"), NewHandler(hub, time.Hour), fakeAuth("alice"))

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/v1/notifications/stream", nil).WithContext(ctx)
	w := &streamRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool, 1)}

	go func() {
		assert.Eventually(t, func() bool { return hub.Subscribers("alice") == 1 }, 2*time.Second, 5*time.Millisecond)
		hub.Deliver("alice", notification.Event{Type: notification.TypeLoanApprove, ResourceID: "res-1", SenderName: "Olive"})
		hub.Deliver("bob", notification.Event{Type: notification.TypeLoanVoid, ResourceID: "res-2"})
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	router.ServeHTTP(w, req)

	body := w.Body.String()
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Contains(t, body, "event:connect")
	assert.Contains(t, body, "event:notification")
	assert.Contains(t, body, "LOAN:APPROVE")
	assert.Contains(t, body, `"sender_name":"Olive"`)
	assert.NotContains(t, body, "LOAN:VOID")
	assert.Equal(t, 0, hub.Subscribers("alice"), "stream unsubscribes on disconnect")
}

func TestStreamRequiresUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	RegisterRoutes(router.Group("/v1"), NewHandler(notification.NewHub(nil), 0), fakeAuth(""))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/notifications/stream", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
