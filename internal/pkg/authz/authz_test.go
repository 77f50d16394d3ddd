package authz

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/PlanFox/app/models"
)

type memoryUsers struct {
	mu     sync.Mutex
	byMail map[string]*models.User
	nextID uint
}

func (m *memoryUsers) Create(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	u.ID = m.nextID
	m.byMail[u.Email] = u
	return nil
}

func (m *memoryUsers) GetByID(_ context.Context, id uint) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byMail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memoryUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byMail[models.NormalizeEmail(email)]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memoryUsers) GetByAPIKeyHash(context.Context, string) (*models.User, error) {
	return nil, gorm.ErrRecordNotFound
}

func (m *memoryUsers) FirstOrCreateByEmail(ctx context.Context, email, name string) (*models.User, error) {
	if u, err := m.GetByEmail(ctx, email); err == nil {
		return u, nil
	}
	u := &models.User{Email: models.NormalizeEmail(email), Name: name}
	return u, m.Create(ctx, u)
}

type memoryCaps struct {
	mu     sync.Mutex
	grants map[uint]map[string]string
}

func (m *memoryCaps) Has(_ context.Context, userID uint, capability string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.grants[userID][capability]
	return ok, nil
}

func (m *memoryCaps) Grant(_ context.Context, userID uint, capability, by string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.grants[userID] == nil {
		m.grants[userID] = map[string]string{}
	}
	if _, ok := m.grants[userID][capability]; ok {
		return false, nil
	}
	m.grants[userID][capability] = by
	return true, nil
}

func (m *memoryCaps) Revoke(_ context.Context, userID uint, capability string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.grants[userID], capability)
	return nil
}

func (m *memoryCaps) ListForUser(_ context.Context, userID uint) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for c := range m.grants[userID] {
		out = append(out, c)
	}
	return out, nil
}

func newTestAuthorizer() (*Authorizer, *memoryUsers, *memoryCaps) {
	users := &memoryUsers{byMail: map[string]*models.User{}}
	caps := &memoryCaps{grants: map[uint]map[string]string{}}
	return New(users, caps), users, caps
}

func TestSeedAdmins_GrantsOnceAndIsIdempotent(t *testing.T) {
	a, users, caps := newTestAuthorizer()
	ctx := context.Background()

	n, err := a.SeedAdmins(ctx, []string{" Root@Example.com ", "", "ops@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 2*len(models.AdminCapabilities), n)

	n, err = a.SeedAdmins(ctx, []string{"root@example.com"})
	require.NoError(t, err)
	assert.Zero(t, n)

	root, err := users.GetByEmail(ctx, "root@example.com")
	require.NoError(t, err)
	assert.Equal(t, bootstrapGrantor, caps.grants[root.ID][models.CapabilityRefundsDecide])

	ok, err := a.IsAuthorized(ctx, root.ID, models.CapabilityRefundsDecide)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsAuthorized(t *testing.T) {
	a, _, caps := newTestAuthorizer()
	ctx := context.Background()
	_, _ = caps.Grant(ctx, 5, models.CapabilityRefundsRead, "test")

	ok, err := a.IsAuthorized(ctx, 5, models.CapabilityRefundsRead)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = a.IsAuthorized(ctx, 5, models.CapabilityRefundsDecide)
	assert.False(t, ok)

	ok, _ = a.IsAuthorized(ctx, 0, models.CapabilityRefundsRead)
	assert.False(t, ok, "anonymous")

	ok, _ = a.IsAuthorized(ctx, 5, "  ")
	assert.False(t, ok)

	require.NoError(t, caps.Revoke(ctx, 5, models.CapabilityRefundsRead))
	ok, _ = a.IsAuthorized(ctx, 5, models.CapabilityRefundsRead)
	assert.False(t, ok)
}

func TestCapabilities(t *testing.T) {
	a, _, _ := newTestAuthorizer()
	ctx := context.Background()

	_, err := a.SeedAdmins(ctx, []string{"root@example.com"})
	require.NoError(t, err)

	caps, err := a.Capabilities(ctx, 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, models.AdminCapabilities, caps)

	caps, err = a.Capabilities(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, caps)
}

func TestParseEmailList(t *testing.T) {
	got := ParseEmailList("a@example.com, B@example.com;a@example.com\n c@example.com ,,")
	assert.Equal(t, []string{"a@example.com", "b@example.com", "c@example.com"}, got)
	assert.Empty(t, ParseEmailList(""))
}
