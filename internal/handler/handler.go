// Package handler содержит HTTP-обработчики API сервиса лояльности.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mpetrenko/loyalty-system/internal/identity"
	"github.com/mpetrenko/loyalty-system/internal/middleware"
	"github.com/mpetrenko/loyalty-system/internal/model"
	"github.com/mpetrenko/loyalty-system/internal/repository"
	"github.com/mpetrenko/loyalty-system/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Register(ctx context.Context, email, password string) (string, error)
	Login(ctx context.Context, email, password string) (*identity.Session, error)
	SocialLogin(ctx context.Context, idToken string) (string, error)
	GetProfile(ctx context.Context, userID string) (*model.User, error)
	ListRewards(ctx context.Context) ([]model.Reward, error)
	CreateReward(ctx context.Context, name, description string, pointsCost int64, isActive bool) (string, error)
	UpdateReward(ctx context.Context, id string, patch model.RewardPatch) error
	DeleteReward(ctx context.Context, id string) error
	Earn(ctx context.Context, userID string, points int64) (string, error)
	Redeem(ctx context.Context, userID, rewardID string) (string, error)
	GetSummary(ctx context.Context) (*model.Summary, error)
}

// Handler реализует HTTP-обработчики API сервиса лояльности.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID, err := h.service.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if errors.Is(err, identity.ErrEmailExists) || errors.Is(err, repository.ErrUserExists) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		h.logger.Error("register user error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"message": "User registered successfully",
		"userId":  userID,
	})
}

// Login выполняет аутентификацию пользователя через провайдера идентификации.
// Статус ошибки провайдера передаётся клиенту без изменений.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		var apiErr *identity.APIError
		if errors.As(err, &apiErr) {
			writeError(w, apiErr.StatusCode, apiErr.Message)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message":      "User logged in successfully",
		"idToken":      session.IDToken,
		"refreshToken": session.RefreshToken,
		"expiresIn":    session.ExpiresIn,
		"localId":      session.LocalID,
	})
}

type socialLoginRequest struct {
	IDToken string `json:"idToken"`
}

// SocialLogin обрабатывает вход через социального провайдера по готовому токену.
func (h *Handler) SocialLogin(w http.ResponseWriter, r *http.Request) {
	var req socialLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID, err := h.service.SocialLogin(r.Context(), req.IDToken)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if errors.Is(err, identity.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "invalid id token")
			return
		}
		h.logger.Error("social login error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "User logged in successfully with social provider",
		"idToken": req.IDToken,
		"userId":  userID,
	})
}

// GetMe возвращает профиль текущего пользователя.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	profile, err := h.service.GetProfile(r.Context(), user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error("get profile error", zap.Error(err), zap.String("userID", user.ID))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

// ListRewards возвращает каталог вознаграждений целиком.
func (h *Handler) ListRewards(w http.ResponseWriter, r *http.Request) {
	rewards, err := h.service.ListRewards(r.Context())
	if err != nil {
		h.logger.Error("list rewards error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if rewards == nil {
		rewards = []model.Reward{}
	}

	writeJSON(w, http.StatusOK, rewards)
}

type createRewardRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	PointsCost  *int64 `json:"points_cost"`
	IsActive    *bool  `json:"is_active"`
}

// CreateReward добавляет вознаграждение в каталог.
func (h *Handler) CreateReward(w http.ResponseWriter, r *http.Request) {
	var req createRewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.PointsCost == nil {
		writeError(w, http.StatusBadRequest, "points_cost is required")
		return
	}

	// Отсутствующее поле is_active означает активную позицию.
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	rewardID, err := h.service.CreateReward(r.Context(), req.Name, req.Description, *req.PointsCost, isActive)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("create reward error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"message":  "Reward created successfully",
		"rewardId": rewardID,
	})
}

// UpdateReward применяет частичное обновление вознаграждения:
// изменяются только поля, явно переданные в теле запроса.
func (h *Handler) UpdateReward(w http.ResponseWriter, r *http.Request) {
	rewardID := chi.URLParam(r, "rewardID")

	var patch model.RewardPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.service.UpdateReward(r.Context(), rewardID, patch)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if errors.Is(err, repository.ErrRewardNotFound) {
			writeError(w, http.StatusNotFound, "reward not found")
			return
		}
		h.logger.Error("update reward error", zap.Error(err), zap.String("rewardID", rewardID))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Reward updated successfully"})
}

// DeleteReward удаляет вознаграждение из каталога.
func (h *Handler) DeleteReward(w http.ResponseWriter, r *http.Request) {
	rewardID := chi.URLParam(r, "rewardID")

	err := h.service.DeleteReward(r.Context(), rewardID)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if errors.Is(err, repository.ErrRewardNotFound) {
			writeError(w, http.StatusNotFound, "reward not found")
			return
		}
		h.logger.Error("delete reward error", zap.Error(err), zap.String("rewardID", rewardID))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Reward deleted successfully"})
}

type earnRequest struct {
	UserID string `json:"userId"`
	Points *int64 `json:"points"`
}

// Earn начисляет баллы пользователю и отвечает идентификатором записи журнала.
func (h *Handler) Earn(w http.ResponseWriter, r *http.Request) {
	var req earnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Points == nil {
		writeError(w, http.StatusBadRequest, "points is required")
		return
	}

	transactionID, err := h.service.Earn(r.Context(), req.UserID, *req.Points)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if errors.Is(err, repository.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error("earn points error", zap.Error(err), zap.String("userID", req.UserID))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message":       "Points awarded successfully",
		"transactionId": transactionID,
	})
}

type redeemRequest struct {
	UserID   string `json:"userId"`
	RewardID string `json:"rewardId"`
}

// Redeem списывает стоимость вознаграждения с баланса пользователя.
// Участник может списывать только со своего счёта; администратор — с любого.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.UserID != caller.ID && !caller.Role.IsAdmin() {
		writeError(w, http.StatusForbidden, "cannot redeem for another user")
		return
	}

	transactionID, err := h.service.Redeem(r.Context(), req.UserID, req.RewardID)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if errors.Is(err, repository.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		if errors.Is(err, repository.ErrRewardNotFound) {
			writeError(w, http.StatusNotFound, "reward not found")
			return
		}
		if errors.Is(err, repository.ErrInsufficientPoints) {
			writeError(w, http.StatusBadRequest, "insufficient points")
			return
		}
		h.logger.Error("redeem reward error", zap.Error(err),
			zap.String("userID", req.UserID), zap.String("rewardID", req.RewardID))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message":       "Reward redeemed successfully",
		"transactionId": transactionID,
	})
}

// GetSummary возвращает агрегированные показатели системы.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.GetSummary(r.Context())
	if err != nil {
		h.logger.Error("analytics summary error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}
