package service

import (
	"crypto/subtle"
	"errors"

	"github.com/ellenlabs/ellen/internal/security"
)

// AuthService exchanges the shared service API key for short-lived access
// tokens. There are no user accounts; callers are trusted frontends.
type AuthService struct {
	serviceAPIKey string
	jwtManager    *security.JWTManager
}

// NewAuthService creates a new auth service
func NewAuthService(serviceAPIKey string, jwtManager *security.JWTManager) *AuthService {
	return &AuthService{
		serviceAPIKey: serviceAPIKey,
		jwtManager:    jwtManager,
	}
}

// TokenResponse carries an issued access token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// IssueToken validates the presented API key and returns an access token
// for the named client.
func (s *AuthService) IssueToken(apiKey, clientID string) (*TokenResponse, error) {
	if s.serviceAPIKey == "" {
		return nil, errors.New("authentication is not configured")
	}
	if subtle.ConstantTimeCompare([]byte(apiKey), []byte(s.serviceAPIKey)) != 1 {
		return nil, errors.New("invalid credentials")
	}
	if clientID == "" {
		clientID = "default"
	}

	token, err := s.jwtManager.GenerateAccessToken(clientID)
	if err != nil {
		return nil, errors.New("failed to generate token")
	}

	return &TokenResponse{
		AccessToken: token,
		ExpiresIn:   int64(s.jwtManager.AccessTokenTTL().Seconds()),
	}, nil
}

// ValidateToken parses and validates an access token.
func (s *AuthService) ValidateToken(token string) (*security.Claims, error) {
	return s.jwtManager.ValidateAccessToken(token)
}
