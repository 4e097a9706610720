package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"authentication", Authentication("missing token"), http.StatusUnauthorized},
		{"authorization", Authorization("forbidden"), http.StatusForbidden},
		{"validation", Validation("bad input"), http.StatusBadRequest},
		{"state", State("already claimed"), http.StatusBadRequest},
		{"conflict", Conflict("email taken"), http.StatusBadRequest},
		{"not found", NotFound("listing not found"), http.StatusNotFound},
		{"wrapped", fmt.Errorf("buy: %w", State("listing no longer active")), http.StatusBadRequest},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestErrorsIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("claim: %w", State("already claimed"))

	assert.True(t, errors.Is(err, ErrState))
	assert.False(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "already claimed", PublicMessage(err))
	assert.Equal(t, "internal server error", PublicMessage(errors.New("db down")))
}

func TestRespond(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/test", func(c *gin.Context) {
		Respond(c, nil, NotFound("project not found"))
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/test", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"project not found"}`, w.Body.String())
}
