package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/mpetrenko/loyalty-system/internal/identity"
	"github.com/mpetrenko/loyalty-system/internal/model"
	"github.com/mpetrenko/loyalty-system/internal/repository"
)

type stubIdentity struct {
	signUpUID    string
	signUpErr    error
	signUpCalled bool

	session   *identity.Session
	signInErr error

	tokenInfo *identity.TokenInfo
	verifyErr error
}

func (s *stubIdentity) SignUp(ctx context.Context, email, password string) (string, error) {
	s.signUpCalled = true
	return s.signUpUID, s.signUpErr
}

func (s *stubIdentity) SignIn(ctx context.Context, email, password string) (*identity.Session, error) {
	return s.session, s.signInErr
}

func (s *stubIdentity) VerifyToken(ctx context.Context, idToken string) (*identity.TokenInfo, error) {
	return s.tokenInfo, s.verifyErr
}

// fakeRepo хранит состояние в памяти и сериализует операции мьютексом,
// воспроизводя контракт PostgresRepository для тестов движка баллов.
type fakeRepo struct {
	mu       sync.Mutex
	balances map[string]int64
	rewards  map[string]int64
	entries  []model.Transaction

	createUserID    string
	createUserEmail string
	ensureUserID    string
	ensureUserEmail string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		balances: make(map[string]int64),
		rewards:  make(map[string]int64),
	}
}

func (f *fakeRepo) Close() error { return nil }

func (f *fakeRepo) CreateUser(ctx context.Context, id, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createUserID = id
	f.createUserEmail = email
	f.balances[id] = 0
	return nil
}

func (f *fakeRepo) EnsureUser(ctx context.Context, id, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureUserID = id
	f.ensureUserEmail = email
	if _, ok := f.balances[id]; !ok {
		f.balances[id] = 0
	}
	return nil
}

func (f *fakeRepo) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	balance, ok := f.balances[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &model.User{ID: id, Points: balance, Role: model.RoleMember}, nil
}

func (f *fakeRepo) ListRewards(ctx context.Context) ([]model.Reward, error) { return nil, nil }

func (f *fakeRepo) CreateReward(ctx context.Context, name, description string, pointsCost int64, isActive bool) (string, error) {
	return "reward-1", nil
}

func (f *fakeRepo) UpdateReward(ctx context.Context, id string, patch model.RewardPatch) error {
	return nil
}

func (f *fakeRepo) DeleteReward(ctx context.Context, id string) error { return nil }

func (f *fakeRepo) Earn(ctx context.Context, userID string, points int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.balances[userID]; !ok {
		return "", repository.ErrUserNotFound
	}

	txID := fmt.Sprintf("tx-%d", len(f.entries)+1)
	f.entries = append(f.entries, model.Transaction{
		ID:     txID,
		UserID: userID,
		Type:   model.TransactionEarned,
		Points: points,
	})
	f.balances[userID] += points

	return txID, nil
}

func (f *fakeRepo) Redeem(ctx context.Context, userID, rewardID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	balance, ok := f.balances[userID]
	if !ok {
		return "", repository.ErrUserNotFound
	}

	cost, ok := f.rewards[rewardID]
	if !ok {
		return "", repository.ErrRewardNotFound
	}

	if balance < cost {
		return "", repository.ErrInsufficientPoints
	}

	txID := fmt.Sprintf("tx-%d", len(f.entries)+1)
	f.entries = append(f.entries, model.Transaction{
		ID:       txID,
		UserID:   userID,
		RewardID: &rewardID,
		Type:     model.TransactionRedeemed,
		Points:   cost,
	})
	f.balances[userID] -= cost

	return txID, nil
}

func (f *fakeRepo) GetSummary(ctx context.Context) (*model.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := &model.Summary{
		TotalUsers:        int64(len(f.balances)),
		TotalTransactions: int64(len(f.entries)),
	}
	for _, balance := range f.balances {
		s.TotalPointsInCirculation += balance
	}
	return s, nil
}

func TestEarn_Validation(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, &stubIdentity{})

	tests := []struct {
		name   string
		userID string
		points int64
	}{
		{name: "empty user id", userID: "", points: 10},
		{name: "zero points", userID: "uid-1", points: 0},
		{name: "negative points", userID: "uid-1", points: -5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Earn(context.Background(), tt.userID, tt.points)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			if len(repo.entries) != 0 {
				t.Fatalf("validation failure must not touch storage, got %d entries", len(repo.entries))
			}
		})
	}
}

func TestRedeem_Validation(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, &stubIdentity{})

	if _, err := svc.Redeem(context.Background(), "", "reward-1"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty user id, got %v", err)
	}
	if _, err := svc.Redeem(context.Background(), "uid-1", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty reward id, got %v", err)
	}
	if len(repo.entries) != 0 {
		t.Fatalf("validation failure must not touch storage, got %d entries", len(repo.entries))
	}
}

func TestRegister_InvalidEmail(t *testing.T) {
	ids := &stubIdentity{}
	svc := NewService(newFakeRepo(), ids)

	_, err := svc.Register(context.Background(), "not-an-email", "secret")
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if ids.signUpCalled {
		t.Fatalf("identity provider must not be called on invalid input")
	}
}

func TestRegister_CreatesProfile(t *testing.T) {
	repo := newFakeRepo()
	ids := &stubIdentity{signUpUID: "uid-42"}
	svc := NewService(repo, ids)

	uid, err := svc.Register(context.Background(), "user@example.com", "secret")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if uid != "uid-42" {
		t.Fatalf("uid = %q, want uid-42", uid)
	}
	if repo.createUserID != "uid-42" || repo.createUserEmail != "user@example.com" {
		t.Fatalf("profile not created: id=%q email=%q", repo.createUserID, repo.createUserEmail)
	}
}

func TestRegister_PropagatesDuplicateEmail(t *testing.T) {
	repo := newFakeRepo()
	ids := &stubIdentity{signUpErr: identity.ErrEmailExists}
	svc := NewService(repo, ids)

	_, err := svc.Register(context.Background(), "user@example.com", "secret")
	if !errors.Is(err, identity.ErrEmailExists) {
		t.Fatalf("expected ErrEmailExists, got %v", err)
	}
	if repo.createUserID != "" {
		t.Fatalf("profile must not be created on provider error")
	}
}

func TestLogin_EmptyCredentials(t *testing.T) {
	svc := NewService(newFakeRepo(), &stubIdentity{})

	if _, err := svc.Login(context.Background(), "", "secret"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty email, got %v", err)
	}
	if _, err := svc.Login(context.Background(), "user@example.com", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty password, got %v", err)
	}
}

func TestLogin_Passthrough(t *testing.T) {
	ids := &stubIdentity{session: &identity.Session{IDToken: "id-token", LocalID: "uid-1"}}
	svc := NewService(newFakeRepo(), ids)

	session, err := svc.Login(context.Background(), "user@example.com", "secret")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if session.IDToken != "id-token" || session.LocalID != "uid-1" {
		t.Fatalf("unexpected session: %+v", session)
	}

	ids.signInErr = &identity.APIError{StatusCode: 400, Message: "INVALID_PASSWORD"}
	ids.session = nil

	_, err = svc.Login(context.Background(), "user@example.com", "wrong")
	var apiErr *identity.APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "INVALID_PASSWORD" {
		t.Fatalf("expected provider APIError, got %v", err)
	}
}

func TestSocialLogin_FirstLoginCreatesProfile(t *testing.T) {
	repo := newFakeRepo()
	ids := &stubIdentity{tokenInfo: &identity.TokenInfo{UID: "uid-7", Email: "social@example.com"}}
	svc := NewService(repo, ids)

	uid, err := svc.SocialLogin(context.Background(), "id-token")
	if err != nil {
		t.Fatalf("SocialLogin error: %v", err)
	}
	if uid != "uid-7" {
		t.Fatalf("uid = %q, want uid-7", uid)
	}
	if repo.ensureUserID != "uid-7" || repo.ensureUserEmail != "social@example.com" {
		t.Fatalf("profile not ensured: id=%q email=%q", repo.ensureUserID, repo.ensureUserEmail)
	}
}

func TestSocialLogin_InvalidToken(t *testing.T) {
	repo := newFakeRepo()
	ids := &stubIdentity{verifyErr: identity.ErrInvalidToken}
	svc := NewService(repo, ids)

	_, err := svc.SocialLogin(context.Background(), "bad-token")
	if !errors.Is(err, identity.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if repo.ensureUserID != "" {
		t.Fatalf("profile must not be ensured for invalid token")
	}
}

func TestCreateReward_Validation(t *testing.T) {
	svc := NewService(newFakeRepo(), &stubIdentity{})

	if _, err := svc.CreateReward(context.Background(), "  ", "", 10, true); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty name, got %v", err)
	}
	if _, err := svc.CreateReward(context.Background(), "Coffee", "", -1, true); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for negative cost, got %v", err)
	}
}

func TestUpdateReward_Validation(t *testing.T) {
	svc := NewService(newFakeRepo(), &stubIdentity{})

	if err := svc.UpdateReward(context.Background(), "reward-1", model.RewardPatch{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty patch, got %v", err)
	}

	emptyName := ""
	if err := svc.UpdateReward(context.Background(), "reward-1", model.RewardPatch{Name: &emptyName}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty name, got %v", err)
	}

	negativeCost := int64(-10)
	if err := svc.UpdateReward(context.Background(), "reward-1", model.RewardPatch{PointsCost: &negativeCost}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for negative cost, got %v", err)
	}
}

func TestLedgerScenario(t *testing.T) {
	repo := newFakeRepo()
	repo.balances["uid-1"] = 100
	repo.rewards["reward-1"] = 40

	svc := NewService(repo, &stubIdentity{})
	ctx := context.Background()

	txID, err := svc.Redeem(ctx, "uid-1", "reward-1")
	if err != nil {
		t.Fatalf("Redeem error: %v", err)
	}
	if txID == "" {
		t.Fatalf("empty transaction id")
	}
	if repo.balances["uid-1"] != 60 {
		t.Fatalf("balance after redeem = %d, want 60", repo.balances["uid-1"])
	}

	if _, err := svc.Earn(ctx, "uid-1", 25); err != nil {
		t.Fatalf("Earn error: %v", err)
	}
	if repo.balances["uid-1"] != 85 {
		t.Fatalf("balance after earn = %d, want 85", repo.balances["uid-1"])
	}

	if len(repo.entries) != 2 {
		t.Fatalf("ledger entries = %d, want 2", len(repo.entries))
	}
	if repo.entries[0].Type != model.TransactionRedeemed || repo.entries[0].Points != 40 {
		t.Fatalf("unexpected first entry: %+v", repo.entries[0])
	}
	if repo.entries[1].Type != model.TransactionEarned || repo.entries[1].Points != 25 {
		t.Fatalf("unexpected second entry: %+v", repo.entries[1])
	}

	summary, err := svc.GetSummary(ctx)
	if err != nil {
		t.Fatalf("GetSummary error: %v", err)
	}
	if summary.TotalTransactions != 2 {
		t.Fatalf("totalTransactions = %d, want 2", summary.TotalTransactions)
	}
}

func TestRedeem_InsufficientPointsLeavesStateUnchanged(t *testing.T) {
	repo := newFakeRepo()
	repo.balances["uid-1"] = 30
	repo.rewards["reward-1"] = 40

	svc := NewService(repo, &stubIdentity{})

	_, err := svc.Redeem(context.Background(), "uid-1", "reward-1")
	if !errors.Is(err, repository.ErrInsufficientPoints) {
		t.Fatalf("expected ErrInsufficientPoints, got %v", err)
	}
	if repo.balances["uid-1"] != 30 {
		t.Fatalf("balance changed on failed redeem: %d", repo.balances["uid-1"])
	}
	if len(repo.entries) != 0 {
		t.Fatalf("failed redeem must not append ledger entries, got %d", len(repo.entries))
	}
}

func TestRedeem_NotFound(t *testing.T) {
	repo := newFakeRepo()
	repo.balances["uid-1"] = 100

	svc := NewService(repo, &stubIdentity{})

	if _, err := svc.Redeem(context.Background(), "uid-1", "missing"); !errors.Is(err, repository.ErrRewardNotFound) {
		t.Fatalf("expected ErrRewardNotFound, got %v", err)
	}

	repo.rewards["reward-1"] = 10
	if _, err := svc.Redeem(context.Background(), "missing", "reward-1"); !errors.Is(err, repository.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	if len(repo.entries) != 0 {
		t.Fatalf("failed redeem must not append ledger entries, got %d", len(repo.entries))
	}
}

// Баланс не может уйти в минус: из двух одновременных списаний,
// каждое на полную сумму баланса, успешным должно быть ровно одно.
func TestRedeem_ConcurrentNeverNegative(t *testing.T) {
	repo := newFakeRepo()
	repo.balances["uid-1"] = 50
	repo.rewards["reward-1"] = 50

	svc := NewService(repo, &stubIdentity{})

	var wg sync.WaitGroup
	errs := make([]error, 2)

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Redeem(context.Background(), "uid-1", "reward-1")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, repository.ErrInsufficientPoints) {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if succeeded != 1 {
		t.Fatalf("succeeded redeems = %d, want 1", succeeded)
	}
	if repo.balances["uid-1"] != 0 {
		t.Fatalf("final balance = %d, want 0", repo.balances["uid-1"])
	}
	if len(repo.entries) != 1 {
		t.Fatalf("ledger entries = %d, want 1", len(repo.entries))
	}
}
