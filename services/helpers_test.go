package services

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/inkwell/models"
	"github.com/cppla/inkwell/utils"
)

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(to, subject, body string) error {
	args := m.Called(to, subject, body)
	return args.Error(0)
}

// lastToken pulls the raw token out of the most recent mail sent to addr.
func (m *MockMailer) lastToken(t *testing.T, addr string) string {
	t.Helper()
	re := regexp.MustCompile(`token[=:] ?([0-9a-f]{32,})`)
	for i := len(m.Calls) - 1; i >= 0; i-- {
		c := m.Calls[i]
		if c.Method != "Send" || c.Arguments.String(0) != addr {
			continue
		}
		if match := re.FindStringSubmatch(c.Arguments.String(2)); match != nil {
			return match[1]
		}
	}
	t.Fatalf("no token mailed to %s", addr)
	return ""
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	svc    *Services
	db     *gorm.DB
	clock  *fakeClock
	mailer *MockMailer
	cache  *utils.MemoryCache
	ctx    context.Context
	seq    int
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.All()...))
	require.NoError(t, SeedRolesAndPermissions(db))
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := setupTestDB(t)
	clock := &fakeClock{t: time.Now().UTC().Truncate(time.Second)}
	mailer := new(MockMailer)
	mailer.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	cache := utils.NewMemoryCache()
	svc := New(db, Options{
		Cache:     cache,
		Mailer:    mailer,
		Storage:   NewLocalStorage(t.TempDir(), "/static/uploads"),
		Now:       clock.Now,
		JWTSecret: "test-secret",
		AppURL:    "http://localhost:8080",
	})
	t.Cleanup(svc.Close)
	return &testEnv{svc: svc, db: db, clock: clock, mailer: mailer, cache: cache, ctx: context.Background()}
}

// user creates an active account holding role.
func (e *testEnv) user(t *testing.T, role string) *models.User {
	t.Helper()
	e.seq++
	hash, err := utils.HashPassword("password123")
	require.NoError(t, err)
	u := &models.User{
		Name:         fmt.Sprintf("%s %d", role, e.seq),
		Username:     fmt.Sprintf("user%d", e.seq),
		Email:        fmt.Sprintf("user%d@example.com", e.seq),
		PasswordHash: hash,
		Status:       models.UserStatusActive,
	}
	require.NoError(t, e.db.Create(u).Error)
	require.NoError(t, e.svc.Users.assignRoleNames(e.db, u, role))
	return u
}

func (e *testEnv) article(t *testing.T, author *models.User, title string) *models.Article {
	t.Helper()
	content := "Some **markdown** body for " + title
	a, err := e.svc.Articles.Create(e.ctx, author, ArticleInput{Title: &title, Content: &content})
	require.NoError(t, err)
	return a
}

// published creates an article by author and approves it as admin.
func (e *testEnv) published(t *testing.T, author, admin *models.User, title string) *models.Article {
	t.Helper()
	a := e.article(t, author, title)
	a, err := e.svc.Articles.Approve(e.ctx, admin, a.ID)
	require.NoError(t, err)
	require.Equal(t, models.ArticlePublished, a.Status)
	return a
}

func requireKind(t *testing.T, want Kind, err error) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, want, KindOf(err), "unexpected error: %v", err)
}

func strPtr(s string) *string { return &s }
