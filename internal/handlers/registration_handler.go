package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"registration-service/internal/models"
	"registration-service/internal/repository"
	"registration-service/internal/services"
)

// serviceErrorResponse maps typed service errors to HTTP status codes.
// Unrecognized errors fall through to a 500 with the fallback message.
func serviceErrorResponse(c *gin.Context, err error, fallback string) {
	if errors.Is(err, services.ErrSessionNotFound) {
		ErrorResponse(c, http.StatusNotFound, "Registration session not found or expired", err)
		return
	}
	if errors.Is(err, repository.ErrBusinessNotFound) {
		ErrorResponse(c, http.StatusNotFound, "Business not found", err)
		return
	}
	if errors.Is(err, repository.ErrPlanNotFound) {
		ErrorResponse(c, http.StatusNotFound, "Plan not found", err)
		return
	}
	if errors.Is(err, models.ErrInvalidTransition) {
		ErrorResponse(c, http.StatusConflict, err.Error(), err)
		return
	}
	if validationErr, ok := services.IsValidationError(err); ok {
		ValidationErrorResponse(c, map[string]string{validationErr.Field: validationErr.Message})
		return
	}
	if conflictErr, ok := services.IsConflictError(err); ok {
		ErrorResponse(c, http.StatusConflict, conflictErr.Message, err)
		return
	}
	if stateErr, ok := services.IsStateError(err); ok {
		ErrorResponse(c, http.StatusConflict, stateErr.Error(), err)
		return
	}
	if procErr, ok := services.IsProcessorError(err); ok {
		// The processor message goes to the client verbatim so they can see
		// what the provider reported.
		requestID := getRequestID(c)
		c.JSON(http.StatusBadGateway, gin.H{
			"success":    false,
			"message":    procErr.Message,
			"operation":  procErr.Operation,
			"retryable":  procErr.Retryable,
			"request_id": requestID,
		})
		return
	}
	ErrorResponse(c, http.StatusInternalServerError, fallback, err)
}

// RegistrationHandler handles onboarding session HTTP requests
type RegistrationHandler struct {
	registrationService *services.RegistrationService
}

// NewRegistrationHandler creates a new registration handler
func NewRegistrationHandler(registrationService *services.RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{registrationService: registrationService}
}

// StartSession creates a fresh onboarding session
// @Summary Start a registration session
// @Tags registration
// @Produce json
// @Success 201 {object} map[string]interface{}
// @Router /api/v1/registration/sessions [post]
func (h *RegistrationHandler) StartSession(c *gin.Context) {
	session, err := h.registrationService.StartSession(c.Request.Context())
	if err != nil {
		serviceErrorResponse(c, err, "Failed to start registration session")
		return
	}
	SuccessResponse(c, http.StatusCreated, "Registration session started", session)
}

// GetSession returns the current state of an onboarding session
// @Summary Get a registration session
// @Tags registration
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/registration/sessions/{sessionId} [get]
func (h *RegistrationHandler) GetSession(c *gin.Context) {
	session, err := h.registrationService.GetSession(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		serviceErrorResponse(c, err, "Failed to load registration session")
		return
	}
	SuccessResponse(c, http.StatusOK, "Registration session retrieved", session)
}

// SubmitIdentityRequest represents the identity capture step payload
type SubmitIdentityRequest struct {
	Email                string `json:"email" binding:"required,email"`
	FirstName            string `json:"first_name" binding:"required,min=2,max=100"`
	LastName             string `json:"last_name" binding:"required,min=2,max=100"`
	Phone                string `json:"phone"`
	Password             string `json:"password" binding:"required,min=8"`
	PasswordConfirmation string `json:"password_confirmation" binding:"required"`
}

// SubmitIdentity records the owner's identity and advances the session.
// A duplicate email is not an error: the session advances with the
// duplicate flag set so the client can offer a sign-in path.
// @Summary Submit owner identity
// @Tags registration
// @Accept json
// @Produce json
// @Param sessionId path string true "Session ID"
// @Param request body SubmitIdentityRequest true "Identity payload"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/registration/sessions/{sessionId}/identity [post]
func (h *RegistrationHandler) SubmitIdentity(c *gin.Context) {
	var req SubmitIdentityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request payload", err)
		return
	}

	session, err := h.registrationService.SubmitIdentity(c.Request.Context(), c.Param("sessionId"), &services.SubmitIdentityRequest{
		Email:                req.Email,
		FirstName:            req.FirstName,
		LastName:             req.LastName,
		Phone:                req.Phone,
		Password:             req.Password,
		PasswordConfirmation: req.PasswordConfirmation,
	})
	if err != nil {
		serviceErrorResponse(c, err, "Failed to submit identity")
		return
	}

	SuccessResponse(c, http.StatusOK, "Identity captured", session)
}

// SubmitBusinessRequest represents the business selection step payload
type SubmitBusinessRequest struct {
	Name       string `json:"name" binding:"required,min=2,max=255"`
	PlaceID    string `json:"place_id"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Vertical   string `json:"vertical"`
}

// SubmitBusiness records the business selection and advances the session
// @Summary Submit business selection
// @Tags registration
// @Accept json
// @Produce json
// @Param sessionId path string true "Session ID"
// @Param request body SubmitBusinessRequest true "Business payload"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/registration/sessions/{sessionId}/business [post]
func (h *RegistrationHandler) SubmitBusiness(c *gin.Context) {
	var req SubmitBusinessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request payload", err)
		return
	}

	session, err := h.registrationService.SubmitBusinessSelection(c.Request.Context(), c.Param("sessionId"), &services.SubmitBusinessRequest{
		Name:       req.Name,
		PlaceID:    req.PlaceID,
		Address:    req.Address,
		City:       req.City,
		PostalCode: req.PostalCode,
		Country:    req.Country,
		Vertical:   req.Vertical,
	})
	if err != nil {
		serviceErrorResponse(c, err, "Failed to submit business selection")
		return
	}

	SuccessResponse(c, http.StatusOK, "Business selection recorded", session)
}

// SelectPlanRequest represents the plan selection step payload
type SelectPlanRequest struct {
	PlanKey string `json:"plan_key" binding:"required"`
}

// SelectPlan records the chosen plan and advances the session
// @Summary Select a subscription plan
// @Tags registration
// @Accept json
// @Produce json
// @Param sessionId path string true "Session ID"
// @Param request body SelectPlanRequest true "Plan payload"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/registration/sessions/{sessionId}/plan [post]
func (h *RegistrationHandler) SelectPlan(c *gin.Context) {
	var req SelectPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request payload", err)
		return
	}

	session, err := h.registrationService.SubmitPlanSelection(c.Request.Context(), c.Param("sessionId"), req.PlanKey)
	if err != nil {
		serviceErrorResponse(c, err, "Failed to select plan")
		return
	}

	SuccessResponse(c, http.StatusOK, "Plan selected", session)
}

// RequestPaymentRequest represents the payment step payload. The billing
// profile is validated and stored before any intent is created.
type RequestPaymentRequest struct {
	BillingProfile *UpdateBillingProfileRequest `json:"billing_profile"`
}

// RequestPayment creates the payment continuation for the selected plan.
// Free plans complete the session immediately with no payment step.
// @Summary Request payment setup
// @Tags registration
// @Accept json
// @Produce json
// @Param sessionId path string true "Session ID"
// @Param request body RequestPaymentRequest false "Payment step payload"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Failure 502 {object} map[string]interface{}
// @Router /api/v1/registration/sessions/{sessionId}/payment [post]
func (h *RegistrationHandler) RequestPayment(c *gin.Context) {
	var req RequestPaymentRequest
	// Body is optional (trial plans, profile already on file), but when one
	// is sent it must bind cleanly.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			ErrorResponse(c, http.StatusBadRequest, "Invalid request payload", err)
			return
		}
	}

	var profile *services.UpdateBillingProfileRequest
	if req.BillingProfile != nil {
		profile = req.BillingProfile.toService()
	}

	result, err := h.registrationService.RequestPayment(c.Request.Context(), c.Param("sessionId"), profile)
	if err != nil {
		serviceErrorResponse(c, err, "Failed to request payment")
		return
	}

	if result.Completed {
		SuccessResponse(c, http.StatusOK, "Registration completed", result)
		return
	}
	SuccessResponse(c, http.StatusOK, "Payment required", result)
}

// ConfirmPaymentRequest represents the payment confirmation payload
type ConfirmPaymentRequest struct {
	IntentID string `json:"intent_id"`
}

// ConfirmPayment activates the subscription after client-side confirmation
// @Summary Confirm payment and activate
// @Tags registration
// @Accept json
// @Produce json
// @Param sessionId path string true "Session ID"
// @Param request body ConfirmPaymentRequest false "Confirmation payload"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/registration/sessions/{sessionId}/payment/confirm [post]
func (h *RegistrationHandler) ConfirmPayment(c *gin.Context) {
	var req ConfirmPaymentRequest
	// Body is optional; the session already knows its intent.
	_ = c.ShouldBindJSON(&req)

	session, err := h.registrationService.ConfirmPayment(c.Request.Context(), c.Param("sessionId"), req.IntentID)
	if err != nil {
		serviceErrorResponse(c, err, "Failed to confirm payment")
		return
	}

	SuccessResponse(c, http.StatusOK, "Registration completed", session)
}

// CancelPayment abandons the payment step and returns to plan selection
// @Summary Cancel the payment step
// @Tags registration
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/registration/sessions/{sessionId}/payment/cancel [post]
func (h *RegistrationHandler) CancelPayment(c *gin.Context) {
	session, err := h.registrationService.CancelPayment(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		serviceErrorResponse(c, err, "Failed to cancel payment")
		return
	}

	SuccessResponse(c, http.StatusOK, "Payment canceled, returned to plan selection", session)
}
