package api

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/squadlite/squadlite/internal/common/errors"
	"github.com/squadlite/squadlite/internal/common/logger"
)

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery(logger.NewNop()), ErrorHandler(logger.NewNop()))
	return r
}

func doRequest(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestErrorHandlerRendersFlatAppErrorBody(t *testing.T) {
	r := newTestRouter()
	r.GET("/boom", func(c *gin.Context) {
		c.Error(errors.NotFound("agent", "a1"))
	})

	w := doRequest(r, http.MethodGet, "/boom")

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("response body is not JSON: %v", err)
	}
	if body["error"] != errors.ErrCodeNotFound {
		t.Errorf("error = %v, want %s", body["error"], errors.ErrCodeNotFound)
	}
	if body["message"] != "agent with id 'a1' not found" {
		t.Errorf("message = %v, want the AppError message", body["message"])
	}
	if body["statusCode"] != float64(http.StatusNotFound) {
		t.Errorf("statusCode = %v, want 404", body["statusCode"])
	}
}

func TestErrorHandlerTransitionViolationMapsToConflict(t *testing.T) {
	r := newTestRouter()
	r.GET("/transition", func(c *gin.Context) {
		c.Error(errors.TransitionViolation("task t1: illegal transition completed -> pending"))
	})

	w := doRequest(r, http.MethodGet, "/transition")

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestErrorHandlerPlainErrorBecomes500(t *testing.T) {
	r := newTestRouter()
	r.GET("/internal", func(c *gin.Context) {
		c.Error(stderrors.New("something low level broke"))
	})

	w := doRequest(r, http.MethodGet, "/internal")

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("response body is not JSON: %v", err)
	}
	if body["error"] != errors.ErrCodeInternalError {
		t.Errorf("error = %v, want %s", body["error"], errors.ErrCodeInternalError)
	}
}

func TestRecoveryTurnsPanicInto500(t *testing.T) {
	r := newTestRouter()
	r.GET("/panic", func(c *gin.Context) {
		panic("handler exploded")
	})

	w := doRequest(r, http.MethodGet, "/panic")

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500 after panic recovery", w.Code)
	}
}
