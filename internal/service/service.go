// Package service реализует бизнес-логику сервиса лояльности.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mpetrenko/loyalty-system/internal/identity"
	"github.com/mpetrenko/loyalty-system/internal/model"
	"github.com/mpetrenko/loyalty-system/internal/validation"
)

// ErrInvalidInput возвращается при некорректных входных данных.
// Проверки выполняются до любого обращения к хранилищу.
var ErrInvalidInput = errors.New("invalid input")

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, id, email string) error
	EnsureUser(ctx context.Context, id, email string) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	ListRewards(ctx context.Context) ([]model.Reward, error)
	CreateReward(ctx context.Context, name, description string, pointsCost int64, isActive bool) (string, error)
	UpdateReward(ctx context.Context, id string, patch model.RewardPatch) error
	DeleteReward(ctx context.Context, id string) error
	Earn(ctx context.Context, userID string, points int64) (string, error)
	Redeem(ctx context.Context, userID, rewardID string) (string, error)
	GetSummary(ctx context.Context) (*model.Summary, error)
}

// IdentityProvider описывает контракт внешнего провайдера идентификации.
type IdentityProvider interface {
	SignUp(ctx context.Context, email, password string) (string, error)
	SignIn(ctx context.Context, email, password string) (*identity.Session, error)
	VerifyToken(ctx context.Context, idToken string) (*identity.TokenInfo, error)
}

// Service содержит бизнес-логику сервиса лояльности.
type Service struct {
	repo Repository
	ids  IdentityProvider
}

// NewService создаёт новый сервис с указанным репозиторием и провайдером идентификации.
func NewService(repo Repository, ids IdentityProvider) *Service {
	return &Service{
		repo: repo,
		ids:  ids,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Register создаёт учётную запись у провайдера идентификации и профиль
// с нулевым балансом. Возвращает идентификатор субъекта.
func (s *Service) Register(ctx context.Context, email, password string) (string, error) {
	if !validation.IsValidEmail(email) {
		return "", fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	if password == "" {
		return "", fmt.Errorf("%w: empty password", ErrInvalidInput)
	}

	uid, err := s.ids.SignUp(ctx, email, password)
	if err != nil {
		return "", err
	}

	if err := s.repo.CreateUser(ctx, uid, email); err != nil {
		return "", err
	}

	return uid, nil
}

// Login выполняет аутентификацию по паролю через провайдера идентификации.
func (s *Service) Login(ctx context.Context, email, password string) (*identity.Session, error) {
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: empty credentials", ErrInvalidInput)
	}

	return s.ids.SignIn(ctx, email, password)
}

// SocialLogin проверяет токен социального провайдера и при первом входе
// создаёт профиль пользователя. Возвращает идентификатор субъекта.
func (s *Service) SocialLogin(ctx context.Context, idToken string) (string, error) {
	if idToken == "" {
		return "", fmt.Errorf("%w: empty id token", ErrInvalidInput)
	}

	info, err := s.ids.VerifyToken(ctx, idToken)
	if err != nil {
		return "", err
	}

	if err := s.repo.EnsureUser(ctx, info.UID, info.Email); err != nil {
		return "", err
	}

	return info.UID, nil
}

// GetProfile возвращает профиль пользователя по идентификатору субъекта.
func (s *Service) GetProfile(ctx context.Context, userID string) (*model.User, error) {
	return s.repo.GetUserByID(ctx, userID)
}

// ListRewards возвращает каталог вознаграждений целиком, включая неактивные позиции.
func (s *Service) ListRewards(ctx context.Context) ([]model.Reward, error) {
	return s.repo.ListRewards(ctx)
}

// CreateReward добавляет вознаграждение в каталог.
func (s *Service) CreateReward(ctx context.Context, name, description string, pointsCost int64, isActive bool) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("%w: reward name must not be empty", ErrInvalidInput)
	}
	if pointsCost < 0 {
		return "", fmt.Errorf("%w: points cost must not be negative", ErrInvalidInput)
	}

	return s.repo.CreateReward(ctx, name, description, pointsCost, isActive)
}

// UpdateReward применяет частичное обновление вознаграждения.
func (s *Service) UpdateReward(ctx context.Context, id string, patch model.RewardPatch) error {
	if id == "" {
		return fmt.Errorf("%w: empty reward id", ErrInvalidInput)
	}
	if patch.IsEmpty() {
		return fmt.Errorf("%w: no fields to update", ErrInvalidInput)
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return fmt.Errorf("%w: reward name must not be empty", ErrInvalidInput)
	}
	if patch.PointsCost != nil && *patch.PointsCost < 0 {
		return fmt.Errorf("%w: points cost must not be negative", ErrInvalidInput)
	}

	return s.repo.UpdateReward(ctx, id, patch)
}

// DeleteReward удаляет вознаграждение из каталога.
func (s *Service) DeleteReward(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty reward id", ErrInvalidInput)
	}

	return s.repo.DeleteReward(ctx, id)
}

// Earn начисляет баллы пользователю и возвращает идентификатор записи журнала.
// Принимаются только целые положительные суммы.
func (s *Service) Earn(ctx context.Context, userID string, points int64) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: empty user id", ErrInvalidInput)
	}
	if points <= 0 {
		return "", fmt.Errorf("%w: points must be positive", ErrInvalidInput)
	}

	return s.repo.Earn(ctx, userID, points)
}

// Redeem списывает стоимость вознаграждения с баланса пользователя
// и возвращает идентификатор записи журнала.
func (s *Service) Redeem(ctx context.Context, userID, rewardID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: empty user id", ErrInvalidInput)
	}
	if rewardID == "" {
		return "", fmt.Errorf("%w: empty reward id", ErrInvalidInput)
	}

	return s.repo.Redeem(ctx, userID, rewardID)
}

// GetSummary возвращает агрегированные показатели системы.
func (s *Service) GetSummary(ctx context.Context) (*model.Summary, error) {
	return s.repo.GetSummary(ctx)
}
