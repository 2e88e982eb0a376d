package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// This file contains mocks definitions needed to perform unit tests.

type MockBookStorage struct {
	AddFunc    func(ctx context.Context, book *Book) error
	GetOneFunc func(ctx context.Context, ownerID, id int64) (Book, error)
	UpdateFunc func(ctx context.Context, ownerID, id int64, in UpdateBookInput) (Book, error)
	DeleteFunc func(ctx context.Context, ownerID, id int64) error
	ListFunc   func(ctx context.Context, ownerID int64, page, limit int) (int, []Book, error)
	SearchFunc func(ctx context.Context, ownerID int64, query string) ([]Book, error)
}

// Add mocks the behavior of book creation by the repository.
func (m *MockBookStorage) Add(ctx context.Context, book *Book) error {
	return m.AddFunc(ctx, book)
}

// GetOne mocks the behavior of retrieving a book by the repository.
func (m *MockBookStorage) GetOne(ctx context.Context, ownerID, id int64) (Book, error) {
	return m.GetOneFunc(ctx, ownerID, id)
}

// Update mocks the behavior of updating a book by the repository.
func (m *MockBookStorage) Update(ctx context.Context, ownerID, id int64, in UpdateBookInput) (Book, error) {
	return m.UpdateFunc(ctx, ownerID, id, in)
}

// Delete mocks the behavior of deleting a book by the repository.
func (m *MockBookStorage) Delete(ctx context.Context, ownerID, id int64) error {
	return m.DeleteFunc(ctx, ownerID, id)
}

// List mocks the behavior of paging books by the repository.
func (m *MockBookStorage) List(ctx context.Context, ownerID int64, page, limit int) (int, []Book, error) {
	return m.ListFunc(ctx, ownerID, page, limit)
}

// Search mocks the behavior of searching books by the repository.
func (m *MockBookStorage) Search(ctx context.Context, ownerID int64, query string) ([]Book, error) {
	return m.SearchFunc(ctx, ownerID, query)
}

type MockUserStorage struct {
	CreateFunc              func(ctx context.Context, user *User) error
	GetByEmailFunc          func(ctx context.Context, email string) (User, error)
	SetVerificationCodeFunc func(ctx context.Context, id int64, code string) error
	MarkVerifiedFunc        func(ctx context.Context, id int64) error
}

func (m *MockUserStorage) Create(ctx context.Context, user *User) error {
	return m.CreateFunc(ctx, user)
}

func (m *MockUserStorage) GetByEmail(ctx context.Context, email string) (User, error) {
	return m.GetByEmailFunc(ctx, email)
}

func (m *MockUserStorage) SetVerificationCode(ctx context.Context, id int64, code string) error {
	return m.SetVerificationCodeFunc(ctx, id, code)
}

func (m *MockUserStorage) MarkVerified(ctx context.Context, id int64) error {
	return m.MarkVerifiedFunc(ctx, id)
}

// MockQueuer records pushed payloads and replays them on Pop.
type MockQueuer struct {
	mu      sync.Mutex
	PushErr error
	Pushed  []MockQueueItem
	PopFunc func(ctx context.Context, qids ...string) (string, []byte, error)
}

type MockQueueItem struct {
	QID     string
	Payload []byte
}

func (m *MockQueuer) Push(_ context.Context, qid string, v interface{}) error {
	if m.PushErr != nil {
		return m.PushErr
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.Pushed = append(m.Pushed, MockQueueItem{QID: qid, Payload: payload})
	m.mu.Unlock()
	return nil
}

func (m *MockQueuer) Pop(ctx context.Context, qids ...string) (string, []byte, error) {
	return m.PopFunc(ctx, qids...)
}

// Items returns a copy of pushed items.
func (m *MockQueuer) Items() []MockQueueItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockQueueItem(nil), m.Pushed...)
}

type MockBookBackup struct {
	SaveFunc          func(ctx context.Context, book Book) error
	GetFunc           func(ctx context.Context, ownerID, id int64) (Book, error)
	DeleteFunc        func(ctx context.Context, ownerID, id int64) error
	GetAllByOwnerFunc func(ctx context.Context, ownerID int64) ([]Book, error)
}

func (m *MockBookBackup) Save(ctx context.Context, book Book) error {
	return m.SaveFunc(ctx, book)
}

func (m *MockBookBackup) Get(ctx context.Context, ownerID, id int64) (Book, error) {
	return m.GetFunc(ctx, ownerID, id)
}

func (m *MockBookBackup) Delete(ctx context.Context, ownerID, id int64) error {
	return m.DeleteFunc(ctx, ownerID, id)
}

func (m *MockBookBackup) GetAllByOwner(ctx context.Context, ownerID int64) ([]Book, error) {
	return m.GetAllByOwnerFunc(ctx, ownerID)
}

type MockMailer struct {
	SendVerificationFunc func(ctx context.Context, mail VerificationMail) error
}

func (m *MockMailer) SendVerification(ctx context.Context, mail VerificationMail) error {
	return m.SendVerificationFunc(ctx, mail)
}

type MockTokenManager struct {
	IssueFunc func(userID int64) (string, error)
	ParseFunc func(token string) (int64, error)
}

func (m *MockTokenManager) Issue(userID int64) (string, error) {
	return m.IssueFunc(userID)
}

func (m *MockTokenManager) Parse(token string) (int64, error) {
	return m.ParseFunc(token)
}

// MockClocker implements a fake TickerClocker.
type MockClocker struct {
	MockNow time.Time
}

// NewMockClocker returns a mocked instance with fixed time.
func NewMockClocker() *MockClocker {
	return &MockClocker{time.Date(2023, 0o7, 0o2, 0o0, 0o0, 0o0, 0o00000000, time.UTC)}
}

// Now returns an already defined time to be used as mock. This
// equals to `Sun, 02 Jul 2023 00:00:00 UTC` in time.RFC1123 format.
func (mck *MockClocker) Now() time.Time {
	return mck.MockNow
}

// NewTicker returns a real ticker since tests only need it to be stoppable.
func (mck *MockClocker) NewTicker(d time.Duration) *time.Ticker {
	return time.NewTicker(d)
}

// MockUIDHandler implements a fake UIDHandler.
type MockUIDHandler struct {
	MockedUID string
	Valid     bool
}

// NewMockUIDHandler returns a mocked instance with predictable id.
func NewMockUIDHandler(id string, valid bool) *MockUIDHandler {
	return &MockUIDHandler{MockedUID: id, Valid: valid}
}

// Generate constructs a predictable id to be used as mock.
func (muid *MockUIDHandler) Generate(prefix string) string {
	return prefix + ":" + muid.MockedUID
}

// IsValid mocks IsValid behavior by providing configured status.
func (muid *MockUIDHandler) IsValid(_, _ string) bool {
	return muid.Valid
}

type MockBookService struct {
	AddFunc    func(ctx context.Context, ownerID int64, in CreateBookInput) (Book, error)
	GetOneFunc func(ctx context.Context, ownerID, id int64) (Book, error)
	UpdateFunc func(ctx context.Context, ownerID, id int64, in UpdateBookInput) (Book, error)
	DeleteFunc func(ctx context.Context, ownerID, id int64) error
	ListFunc   func(ctx context.Context, ownerID int64, page, limit int) (BooksPage, error)
	SearchFunc func(ctx context.Context, ownerID int64, query string) ([]Book, error)
}

func (m *MockBookService) Add(ctx context.Context, ownerID int64, in CreateBookInput) (Book, error) {
	return m.AddFunc(ctx, ownerID, in)
}

func (m *MockBookService) GetOne(ctx context.Context, ownerID, id int64) (Book, error) {
	return m.GetOneFunc(ctx, ownerID, id)
}

func (m *MockBookService) Update(ctx context.Context, ownerID, id int64, in UpdateBookInput) (Book, error) {
	return m.UpdateFunc(ctx, ownerID, id, in)
}

func (m *MockBookService) Delete(ctx context.Context, ownerID, id int64) error {
	return m.DeleteFunc(ctx, ownerID, id)
}

func (m *MockBookService) List(ctx context.Context, ownerID int64, page, limit int) (BooksPage, error) {
	return m.ListFunc(ctx, ownerID, page, limit)
}

func (m *MockBookService) Search(ctx context.Context, ownerID int64, query string) ([]Book, error) {
	return m.SearchFunc(ctx, ownerID, query)
}

type MockAuthService struct {
	SignupFunc             func(ctx context.Context, in SignupInput) (User, error)
	VerifyFunc             func(ctx context.Context, in VerifyInput) error
	ResendVerificationFunc func(ctx context.Context, in ResendInput) error
	LoginFunc              func(ctx context.Context, in LoginInput) (LoginResult, error)
	AuthenticateFunc       func(token string) (int64, error)
}

func (m *MockAuthService) Signup(ctx context.Context, in SignupInput) (User, error) {
	return m.SignupFunc(ctx, in)
}

func (m *MockAuthService) Verify(ctx context.Context, in VerifyInput) error {
	return m.VerifyFunc(ctx, in)
}

func (m *MockAuthService) ResendVerification(ctx context.Context, in ResendInput) error {
	return m.ResendVerificationFunc(ctx, in)
}

func (m *MockAuthService) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	return m.LoginFunc(ctx, in)
}

func (m *MockAuthService) Authenticate(token string) (int64, error) {
	return m.AuthenticateFunc(token)
}

// testConfig returns the configuration shared by handler tests.
func testConfig() *Config {
	cfg := &Config{
		Server:             ServerConfig{Host: "127.0.0.1", Port: "8080"},
		Postgres:           PostgresConfig{DSN: "postgres://test"},
		Redis:              RedisConfig{Host: "127.0.0.1", Port: "6379"},
		Auth:               AuthConfig{JWTSecret: "a-test-secret-of-32-characters!!"},
		Ops:                OpsConfig{Username: "ops", Password: "secret"},
		OpsEndpointsEnable: true,
	}
	setConfigDefaults(cfg)
	return cfg
}

// newTestAPIHandler builds an api handler around the given services.
func newTestAPIHandler(bs BookServiceProvider, as AuthServiceProvider) *APIHandler {
	clock := NewMockClocker()
	return NewAPIHandler(
		zap.NewNop(),
		testConfig(),
		&Statistics{started: clock.Now()},
		clock,
		NewMockUIDHandler("abc", false),
		nil,
		bs,
		as,
	)
}

// withUser returns a copy of r authenticated as userID.
func withUser(r *http.Request, userID int64) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), ContextUserID, userID))
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }
