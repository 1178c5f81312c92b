package response

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/nekogravitycat/bookshare-backend/internal/pkg/apperror"
)

func TestNewPageResponse(t *testing.T) {
	t.Run("Page: Nil Items Become Empty", func(t *testing.T) {
		p := NewPageResponse[string](nil, 1, 20, 0)
		assert.NotNil(t, p.Items)
		assert.Equal(t, 0, p.TotalPages)
	})

	t.Run("Page: Total Pages Rounds Up", func(t *testing.T) {
		p := NewPageResponse([]int{1, 2}, 3, 2, 5)
		assert.Equal(t, 3, p.TotalPages)
		assert.Equal(t, 5, p.Total)
	})
}

func TestError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	run := func(err error) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		Error(c, err)
		return w
	}

	t.Run("Error: Wrapped AppError Keeps Status", func(t *testing.T) {
		notFound := apperror.New(http.StatusNotFound, "thing not found")
		w := run(fmt.Errorf("lookup: %w", notFound))
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.JSONEq(t, `{"error":"thing not found"}`, w.Body.String())
		assert.Empty(t, w.Header().Get("Retry-After"))
	})

	t.Run("Error: Retryable Sets Retry-After", func(t *testing.T) {
		busy := apperror.NewRetryable(http.StatusServiceUnavailable, "busy")
		w := run(busy.With(errors.New("lock held")))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, RetryAfterSeconds, w.Header().Get("Retry-After"))
		assert.JSONEq(t, `{"error":"busy","retryable":true}`, w.Body.String())
	})

	t.Run("Error: Unknown Error Is Hidden", func(t *testing.T) {
		w := run(errors.New("connection reset by peer"))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "connection reset")
	})
}
