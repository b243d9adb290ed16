package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"registration-service/internal/models"
	"registration-service/internal/repository"
	"registration-service/internal/services"
)

func responseFor(t *testing.T, err error) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	serviceErrorResponse(c, err, "Internal error")
	return w
}

func TestServiceErrorResponseStatusCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"session not found", services.ErrSessionNotFound, http.StatusNotFound},
		{"wrapped session not found", fmt.Errorf("load: %w", services.ErrSessionNotFound), http.StatusNotFound},
		{"business not found", repository.ErrBusinessNotFound, http.StatusNotFound},
		{"plan not found", fmt.Errorf("plan premium: %w", repository.ErrPlanNotFound), http.StatusNotFound},
		{"invalid transition", fmt.Errorf("select plan in step completed: %w", models.ErrInvalidTransition), http.StatusConflict},
		{"validation error", services.NewValidationError("plan_key", "plan is not active", nil), http.StatusBadRequest},
		{"conflict error", services.NewConflictError("subscription", "already active"), http.StatusConflict},
		{"state error", services.NewStateError("resume", "pending_deletion", "grace window elapsed"), http.StatusConflict},
		{"processor error", services.NewProcessorError("create intent", errors.New("card declined"), true), http.StatusBadGateway},
		{"unknown error", errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := responseFor(t, tt.err)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestServiceErrorResponseCarriesProcessorMessage(t *testing.T) {
	w := responseFor(t, services.NewProcessorError("create intent", errors.New("card declined"), false))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	// The processor message reaches the client verbatim.
	assert.Contains(t, w.Body.String(), "card declined")
	assert.Contains(t, w.Body.String(), `"retryable":false`)
}

func TestServiceErrorResponseValidationFieldMap(t *testing.T) {
	w := responseFor(t, services.NewValidationError("tax_id", "tax id must be a valid CIF for companies", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"tax_id"`)
}
