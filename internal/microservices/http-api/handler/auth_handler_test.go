package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"animetrack/internal/logger"
	"animetrack/internal/microservices/http-api/dto"
	"animetrack/internal/microservices/http-api/handler"
	"animetrack/internal/microservices/http-api/middleware"
	"animetrack/internal/microservices/http-api/models"
	"animetrack/internal/microservices/http-api/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockAuthService mocks the AuthService interface
type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) Register(ctx context.Context, username, password, email string) (*models.User, error) {
	args := m.Called(ctx, username, password, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockAuthService) Login(ctx context.Context, username, password string) (string, *models.User, error) {
	args := m.Called(ctx, username, password)
	if args.Get(1) == nil {
		return args.String(0), nil, args.Error(2)
	}
	return args.String(0), args.Get(1).(*models.User), args.Error(2)
}

func (m *MockAuthService) ValidateToken(tokenString string) (*service.Claims, error) {
	args := m.Called(tokenString)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Claims), args.Error(1)
}

func (m *MockAuthService) Me(ctx context.Context, userID int64) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockAuthService) TokenTTL() time.Duration {
	return 24 * time.Hour
}

func setupAuthRouter(svc *MockAuthService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := handler.NewAuthHandler(svc, handler.NewErrorResponder(true, logger.Discard()))
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)
	r.GET("/auth/me", middleware.AuthMiddleware(svc), h.Me)
	return r
}

func TestRegister_Success(t *testing.T) {
	svc := new(MockAuthService)
	svc.On("Register", mock.Anything, "mika", "password123", "mika@example.com").
		Return(&models.User{ID: 3, Username: "mika", Email: "mika@example.com", Role: "user"}, nil)

	w := doJSON(setupAuthRouter(svc), http.MethodPost, "/auth/register",
		map[string]string{"username": "mika", "password": "password123", "email": "mika@example.com"})

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp dto.UserResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(3), resp.ID)
	assert.NotContains(t, w.Body.String(), "password")
	svc.AssertExpectations(t)
}

func TestRegister_BadRequest(t *testing.T) {
	svc := new(MockAuthService)
	r := setupAuthRouter(svc)

	w := doJSON(r, http.MethodPost, "/auth/register", map[string]string{"username": "mika"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/auth/register",
		map[string]string{"username": "mika", "password": "short", "email": "mika@example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "Register")
}

func TestRegister_Taken(t *testing.T) {
	for _, taken := range []error{service.ErrNameInUse, service.ErrEmailInUse} {
		svc := new(MockAuthService)
		svc.On("Register", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, taken)

		w := doJSON(setupAuthRouter(svc), http.MethodPost, "/auth/register",
			map[string]string{"username": "mika", "password": "password123", "email": "mika@example.com"})

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.JSONEq(t, `{"error":"account creation failed"}`, w.Body.String())
	}
}

func TestLogin(t *testing.T) {
	svc := new(MockAuthService)
	svc.On("Login", mock.Anything, "mika", "password123").
		Return("signed.jwt.token", &models.User{ID: 3, Username: "mika"}, nil)
	svc.On("Login", mock.Anything, "mika", "wrong-pass").
		Return("", nil, service.ErrInvalidCredentials)
	svc.On("Login", mock.Anything, "broken", mock.Anything).
		Return("", nil, errors.New("users table locked"))
	r := setupAuthRouter(svc)

	w := doJSON(r, http.MethodPost, "/auth/login", map[string]string{"username": "mika", "password": "password123"})
	assert.Equal(t, http.StatusOK, w.Code)
	var resp dto.AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "signed.jwt.token", resp.AccessToken)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, int64(3), resp.UserID)
	assert.Equal(t, int64(86400), resp.ExpiresIn)

	w = doJSON(r, http.MethodPost, "/auth/login", map[string]string{"username": "mika", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(r, http.MethodPost, "/auth/login", map[string]string{"username": "broken", "password": "whatever"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "locked")
}

func TestMe(t *testing.T) {
	svc := new(MockAuthService)
	svc.On("ValidateToken", "good").Return(&service.Claims{UserID: 3, Role: "user"}, nil)
	svc.On("ValidateToken", "gone").Return(&service.Claims{UserID: 9, Role: "user"}, nil)
	svc.On("ValidateToken", "bad").Return(nil, service.ErrInvalidToken)
	svc.On("Me", mock.Anything, int64(3)).Return(&models.User{ID: 3, Username: "mika"}, nil)
	svc.On("Me", mock.Anything, int64(9)).Return(nil, service.ErrUserNotFound)
	r := setupAuthRouter(svc)

	get := func(token string) int {
		w := doJSONWithToken(r, http.MethodGet, "/auth/me", token)
		return w.Code
	}
	assert.Equal(t, http.StatusOK, get("good"))
	assert.Equal(t, http.StatusNotFound, get("gone"))
	assert.Equal(t, http.StatusUnauthorized, get("bad"))
	assert.Equal(t, http.StatusUnauthorized, get(""))
}
