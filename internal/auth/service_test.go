package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/rhystic/internal/metrics"
	"github.com/hitoshi/rhystic/internal/model"
	"github.com/hitoshi/rhystic/internal/repository"
)

// --- モック定義 ---

type mockUserRepo struct {
	createFn         func(ctx context.Context, user *model.User) error
	findByIDFn       func(ctx context.Context, id string) (*model.User, error)
	findByUsernameFn func(ctx context.Context, username string) (*model.User, error)
	updateProfileFn  func(ctx context.Context, id, name, username, avatarURL string) error
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	if m.findByUsernameFn != nil {
		return m.findByUsernameFn(ctx, username)
	}
	return nil, nil
}

func (m *mockUserRepo) UpdateProfile(ctx context.Context, id, name, username, avatarURL string) error {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, id, name, username, avatarURL)
	}
	return nil
}

type mockSessionRepo struct {
	createFn     func(ctx context.Context, session *model.Session) error
	deleteByIDFn func(ctx context.Context, id string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) FindByID(_ context.Context, _ string) (*model.Session, error) {
	return nil, nil
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

func (m *mockSessionRepo) DeleteByUserID(_ context.Context, _ string) error { return nil }
func (m *mockSessionRepo) SetFlash(_ context.Context, _, _ string) error    { return nil }
func (m *mockSessionRepo) PopFlash(_ context.Context, _ string) (string, error) {
	return "", nil
}

type mockCollector struct {
	signups int
}

func (m *mockCollector) RecordSignup()                               { m.signups++ }
func (m *mockCollector) RecordCheckoutSuccess()                      {}
func (m *mockCollector) RecordCheckoutFailure(reason string)         {}
func (m *mockCollector) RecordTradeCreated()                         {}
func (m *mockCollector) RecordCatalogLookup(found bool)              {}
func (m *mockCollector) RecordCatalogLatency(duration time.Duration) {}
func (m *mockCollector) RecordHTTPStatus(statusCode int)             {}

// --- compile-time interface checks ---
var _ repository.UserRepository = (*mockUserRepo)(nil)
var _ repository.SessionRepository = (*mockSessionRepo)(nil)
var _ metrics.MetricsCollector = (*mockCollector)(nil)

func newTestService(userRepo *mockUserRepo, sessionRepo *mockSessionRepo) *Service {
	return NewService(userRepo, sessionRepo, &mockCollector{}, ServiceConfig{
		SessionMaxAge: 86400,
		SignupBalance: decimal.NewFromInt(100),
	})
}

// --- テスト ---

func TestSignup_CreatesUserWithHashedPasswordAndSession(t *testing.T) {
	ctx := context.Background()

	var createdUser *model.User
	var createdSession *model.Session

	userRepo := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			createdUser = user
			return nil
		},
	}
	sessionRepo := &mockSessionRepo{
		createFn: func(ctx context.Context, session *model.Session) error {
			createdSession = session
			return nil
		},
	}

	svc := newTestService(userRepo, sessionRepo)

	user, session, err := svc.Signup(ctx, "Alice", "alice", "alice@example.com", "s3cret")
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}

	if user == nil || session == nil {
		t.Fatal("expected non-nil user and session")
	}
	if createdUser == nil {
		t.Fatal("expected user to be persisted")
	}

	// パスワードは平文で保存されない
	if createdUser.PasswordHash == "s3cret" {
		t.Error("password must not be stored in plain text")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(createdUser.PasswordHash), []byte("s3cret")); err != nil {
		t.Errorf("stored hash should match original password: %v", err)
	}

	// 初期残高が設定される
	if !createdUser.Balance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Balance = %s, want 100", createdUser.Balance)
	}

	// セッションが発行される
	if createdSession == nil {
		t.Fatal("expected session to be persisted")
	}
	if createdSession.UserID != createdUser.ID {
		t.Errorf("session.UserID = %q, want %q", createdSession.UserID, createdUser.ID)
	}
	if createdSession.ID == "" {
		t.Error("expected non-empty session ID")
	}
	if !createdSession.ExpiresAt.After(time.Now()) {
		t.Error("session should expire in the future")
	}
}

func TestSignup_EmptyFields_ReturnsInvalidInput(t *testing.T) {
	svc := newTestService(&mockUserRepo{}, &mockSessionRepo{})

	cases := []struct {
		name, username, email, password string
	}{
		{"", "alice", "a@example.com", "pw"},
		{"Alice", "", "a@example.com", "pw"},
		{"Alice", "alice", "", "pw"},
		{"Alice", "alice", "a@example.com", ""},
	}

	for _, tc := range cases {
		_, _, err := svc.Signup(context.Background(), tc.name, tc.username, tc.email, tc.password)

		var apiErr *model.APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected APIError, got %v", err)
		}
		if apiErr.Code != model.ErrCodeInvalidInput {
			t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeInvalidInput)
		}
	}
}

func TestSignup_DuplicateUsername_ReturnsConflictError(t *testing.T) {
	userRepo := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			return repository.ErrDuplicateUsername
		},
	}

	svc := newTestService(userRepo, &mockSessionRepo{})

	_, _, err := svc.Signup(context.Background(), "Alice", "alice", "a@example.com", "pw")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeDuplicateUsername {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeDuplicateUsername)
	}
}

func TestSignup_RecordsMetric(t *testing.T) {
	collector := &mockCollector{}
	svc := NewService(&mockUserRepo{}, &mockSessionRepo{}, collector, ServiceConfig{
		SessionMaxAge: 86400,
		SignupBalance: decimal.Zero,
	})

	if _, _, err := svc.Signup(context.Background(), "Alice", "alice", "a@example.com", "pw"); err != nil {
		t.Fatalf("Signup() error = %v", err)
	}

	if collector.signups != 1 {
		t.Errorf("signups recorded = %d, want 1", collector.signups)
	}
}

func TestLogin_ValidCredentials_ReturnsUserAndSession(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.DefaultCost)

	userRepo := &mockUserRepo{
		findByUsernameFn: func(ctx context.Context, username string) (*model.User, error) {
			return &model.User{
				ID:           "user-1",
				Username:     username,
				PasswordHash: string(hash),
			}, nil
		},
	}

	svc := newTestService(userRepo, &mockSessionRepo{})

	user, session, err := svc.Login(context.Background(), "alice", "s3cret")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if user.ID != "user-1" {
		t.Errorf("user.ID = %q, want user-1", user.ID)
	}
	if session == nil || session.ID == "" {
		t.Fatal("expected non-empty session")
	}
}

// ユーザー名不存在とパスワード不一致は同じエラーになる
func TestLogin_UnknownUserAndWrongPassword_ReturnSameError(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("correct"), bcrypt.DefaultCost)

	unknownRepo := &mockUserRepo{
		findByUsernameFn: func(ctx context.Context, username string) (*model.User, error) {
			return nil, nil
		},
	}
	wrongPassRepo := &mockUserRepo{
		findByUsernameFn: func(ctx context.Context, username string) (*model.User, error) {
			return &model.User{ID: "user-1", PasswordHash: string(hash)}, nil
		},
	}

	for _, repo := range []*mockUserRepo{unknownRepo, wrongPassRepo} {
		svc := newTestService(repo, &mockSessionRepo{})

		_, _, err := svc.Login(context.Background(), "alice", "wrong")

		var apiErr *model.APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected APIError, got %v", err)
		}
		if apiErr.Code != model.ErrCodeInvalidCredential {
			t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeInvalidCredential)
		}
	}
}

func TestLogout_DeletesSession(t *testing.T) {
	var deletedID string
	sessionRepo := &mockSessionRepo{
		deleteByIDFn: func(ctx context.Context, id string) error {
			deletedID = id
			return nil
		},
	}

	svc := newTestService(&mockUserRepo{}, sessionRepo)

	if err := svc.Logout(context.Background(), "session-abc"); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if deletedID != "session-abc" {
		t.Errorf("deleted session = %q, want session-abc", deletedID)
	}
}

func TestLogout_EmptySessionID_ReturnsError(t *testing.T) {
	svc := newTestService(&mockUserRepo{}, &mockSessionRepo{})

	if err := svc.Logout(context.Background(), ""); err == nil {
		t.Error("expected error for empty session ID")
	}
}
