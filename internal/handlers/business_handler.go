package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"registration-service/internal/models"
	"registration-service/internal/repository"
	"registration-service/internal/services"
)

// BusinessHandler handles business account HTTP requests
type BusinessHandler struct {
	businessRepo   *repository.BusinessRepository
	billingService *services.BillingService
}

// NewBusinessHandler creates a new business handler
func NewBusinessHandler(businessRepo *repository.BusinessRepository, billingService *services.BillingService) *BusinessHandler {
	return &BusinessHandler{
		businessRepo:   businessRepo,
		billingService: billingService,
	}
}

// CreateBusinessRequest represents a direct business creation request,
// outside the guided session flow.
type CreateBusinessRequest struct {
	Name       string `json:"name" binding:"required,min=2,max=255"`
	PlaceID    string `json:"place_id"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Vertical   string `json:"vertical"`

	OwnerEmail     string `json:"owner_email" binding:"required,email"`
	OwnerFirstName string `json:"owner_first_name" binding:"required"`
	OwnerLastName  string `json:"owner_last_name" binding:"required"`
	OwnerPhone     string `json:"owner_phone"`
}

// CreateBusiness creates a business together with its owner account.
// When the owner email already exists, the response reports the duplicate
// instead of failing, so clients can route the user to sign-in.
// @Summary Create a business
// @Tags businesses
// @Accept json
// @Produce json
// @Param request body CreateBusinessRequest true "Business creation request"
// @Success 201 {object} map[string]interface{}
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
// @Router /api/v1/businesses [post]
func (h *BusinessHandler) CreateBusiness(c *gin.Context) {
	var req CreateBusinessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request payload", err)
		return
	}

	owner := &models.Owner{
		Email:     req.OwnerEmail,
		FirstName: req.OwnerFirstName,
		LastName:  req.OwnerLastName,
		Phone:     req.OwnerPhone,
	}
	business := &models.Business{
		Name:       req.Name,
		PlaceID:    req.PlaceID,
		Address:    req.Address,
		City:       req.City,
		PostalCode: req.PostalCode,
		Country:    req.Country,
		Vertical:   req.Vertical,
	}

	result := h.businessRepo.CreateWithOwner(c.Request.Context(), owner, business)
	switch result.Outcome {
	case repository.BusinessCreated:
		SuccessResponse(c, http.StatusCreated, "Business created", gin.H{
			"business_id": result.BusinessID,
			"owner_id":    result.OwnerID,
		})
	case repository.BusinessDuplicateOwner:
		SuccessResponse(c, http.StatusOK, "An account already exists for this email", gin.H{
			"duplicate_owner": true,
			"owner_id":        result.OwnerID,
		})
	default:
		ErrorResponse(c, http.StatusInternalServerError, "Failed to create business", nil)
	}
}

// GetBusiness returns a business with its owner
// @Summary Get a business
// @Tags businesses
// @Produce json
// @Param id path string true "Business ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/businesses/{id} [get]
func (h *BusinessHandler) GetBusiness(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid business ID format", err)
		return
	}

	business, err := h.businessRepo.GetByIDWithOwner(c.Request.Context(), id)
	if err != nil {
		serviceErrorResponse(c, err, "Failed to get business")
		return
	}

	SuccessResponse(c, http.StatusOK, "Business retrieved", business)
}

// ListBusinesses lists businesses with pagination and filters
// @Summary List businesses
// @Tags businesses
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param registration_status query string false "Filter by registration status"
// @Param active query bool false "Filter by active flag"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/businesses [get]
func (h *BusinessHandler) ListBusinesses(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	filters := make(map[string]interface{})
	if status := c.Query("registration_status"); status != "" {
		filters["registration_status"] = status
	}
	if ownerID := c.Query("owner_id"); ownerID != "" {
		filters["owner_id"] = ownerID
	}
	if active := c.Query("active"); active != "" {
		filters["active"] = active == "true"
	}

	businesses, total, err := h.businessRepo.List(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, "Failed to list businesses", err)
		return
	}

	SuccessResponse(c, http.StatusOK, "Businesses retrieved", gin.H{
		"businesses": businesses,
		"total":      total,
		"page":       page,
		"page_size":  pageSize,
	})
}

// UpdateBusinessRequest represents a business detail update
type UpdateBusinessRequest struct {
	Name       string `json:"name"`
	PlaceID    string `json:"place_id"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Vertical   string `json:"vertical"`
}

// UpdateBusiness updates business details. Empty fields are left unchanged.
// @Summary Update a business
// @Tags businesses
// @Accept json
// @Produce json
// @Param id path string true "Business ID"
// @Param request body UpdateBusinessRequest true "Business update payload"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/businesses/{id} [put]
func (h *BusinessHandler) UpdateBusiness(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid business ID format", err)
		return
	}

	var req UpdateBusinessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request payload", err)
		return
	}

	business, err := h.businessRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		serviceErrorResponse(c, err, "Failed to get business")
		return
	}

	if req.Name != "" {
		business.Name = req.Name
	}
	if req.PlaceID != "" {
		business.PlaceID = req.PlaceID
	}
	if req.Address != "" {
		business.Address = req.Address
	}
	if req.City != "" {
		business.City = req.City
	}
	if req.PostalCode != "" {
		business.PostalCode = req.PostalCode
	}
	if req.Country != "" {
		business.Country = req.Country
	}
	if req.Vertical != "" {
		business.Vertical = req.Vertical
	}

	updated, err := h.businessRepo.Update(c.Request.Context(), business)
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, "Failed to update business", err)
		return
	}

	SuccessResponse(c, http.StatusOK, "Business updated", updated)
}

// UpdateBillingProfileRequest represents the billing profile payload
type UpdateBillingProfileRequest struct {
	CustomerType string `json:"customer_type" binding:"required,oneof=individual company"`
	LegalName    string `json:"legal_name" binding:"required,min=2,max=255"`
	TaxID        string `json:"tax_id" binding:"required"`
	Street       string `json:"street" binding:"required"`
	City         string `json:"city" binding:"required"`
	PostalCode   string `json:"postal_code" binding:"required"`
	Country      string `json:"country" binding:"required,len=2"`
}

func (r *UpdateBillingProfileRequest) toService() *services.UpdateBillingProfileRequest {
	return &services.UpdateBillingProfileRequest{
		CustomerType: r.CustomerType,
		LegalName:    r.LegalName,
		TaxID:        r.TaxID,
		Street:       r.Street,
		City:         r.City,
		PostalCode:   r.PostalCode,
		Country:      r.Country,
	}
}

// UpdateBillingProfile sets or replaces the billing profile of a business.
// Tax ID format is validated against the customer type: NIF for
// individuals, CIF for companies.
// @Summary Update billing profile
// @Tags businesses
// @Accept json
// @Produce json
// @Param id path string true "Business ID"
// @Param request body UpdateBillingProfileRequest true "Billing profile payload"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/businesses/{id}/billing-profile [put]
func (h *BusinessHandler) UpdateBillingProfile(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid business ID format", err)
		return
	}

	var req UpdateBillingProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request payload", err)
		return
	}

	svcReq := req.toService()
	if fieldErrs := h.billingService.ValidateProfile(svcReq); len(fieldErrs) > 0 {
		ValidationErrorResponse(c, fieldErrs)
		return
	}

	business, err := h.billingService.UpdateBillingProfile(c.Request.Context(), id, svcReq)
	if err != nil {
		serviceErrorResponse(c, err, "Failed to update billing profile")
		return
	}

	SuccessResponse(c, http.StatusOK, "Billing profile updated", business)
}
