package handler

import (
	"encoding/json"
	"net/http"

	"github.com/ellenlabs/ellen/internal/api/response"
	"github.com/ellenlabs/ellen/internal/service"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

type tokenRequest struct {
	APIKey   string `json:"api_key" validate:"required"`
	ClientID string `json:"client_id" validate:"max=100"`
}

// Token exchanges the service API key for a short-lived access token
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var input tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	if err := validate.Struct(input); err != nil {
		response.BadRequest(w, validationMessages(err))
		return
	}

	token, err := h.authService.IssueToken(input.APIKey, input.ClientID)
	if err != nil {
		response.Unauthorized(w, "invalid credentials")
		return
	}

	response.OK(w, token)
}

// validationMessages flattens validator errors into field -> message.
func validationMessages(err error) any {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}

	errors := make(map[string]string)
	for _, e := range validationErrors {
		switch e.Tag() {
		case "required":
			errors[e.Field()] = "field is required"
		case "max":
			errors[e.Field()] = "must be at most " + e.Param() + " characters"
		case "min":
			errors[e.Field()] = "must be at least " + e.Param() + " characters"
		default:
			errors[e.Field()] = "validation failed on " + e.Tag()
		}
	}
	return errors
}
