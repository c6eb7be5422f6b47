package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"pos-service/config"
	"pos-service/internal/models"
	"pos-service/internal/redisclient"
	"pos-service/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryCreds struct {
	mu   sync.Mutex
	byID map[string]*models.Identity
}

func newMemoryCreds() *memoryCreds {
	return &memoryCreds{byID: make(map[string]*models.Identity)}
}

func (m *memoryCreds) CreateIdentity(_ context.Context, id *models.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.App == id.App && existing.Email == id.Email {
			return store.ErrConflict
		}
	}
	cp := *id
	m.byID[id.ID] = &cp
	return nil
}

func (m *memoryCreds) GetIdentity(_ context.Context, app, id string) (*models.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ident, ok := m.byID[id]
	if !ok || ident.App != app {
		return nil, store.ErrNotFound
	}
	cp := *ident
	return &cp, nil
}

func (m *memoryCreds) GetIdentityByEmail(_ context.Context, app, email string) (*models.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ident := range m.byID {
		if ident.App == app && ident.Email == email {
			cp := *ident
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memoryCreds) UpdateIdentity(_ context.Context, id *models.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *id
	m.byID[id.ID] = &cp
	return nil
}

func (m *memoryCreds) DeleteIdentity(_ context.Context, _ string, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
	return nil
}

type memoryRevocations struct {
	mu    sync.Mutex
	marks map[string]time.Time
}

func (m *memoryRevocations) RevokeCredentials(_ context.Context, app, principalID string, now time.Time, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.marks == nil {
		m.marks = make(map[string]time.Time)
	}
	m.marks[app+":"+principalID] = now
	return nil
}

func (m *memoryRevocations) RevokedAt(_ context.Context, app, principalID string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.marks[app+":"+principalID], nil
}

func testAppConfig(name string) config.AppConfig {
	return config.AppConfig{
		Name:            name,
		Secret:          "test-secret-key-for-" + name + "-at-least-32-chars",
		Issuer:          "pos-" + name,
		TokenExpiration: time.Hour,
	}
}

func newTestProvider(name string) *Provider {
	return NewProvider(testAppConfig(name), newMemoryCreds(), &memoryRevocations{})
}

func TestJWT_GenerateAndValidate(t *testing.T) {
	svc := NewJWTService(testAppConfig("tenant"))

	token, expiresAt, err := svc.Generate("tenant-1", "", time.Now(), 0)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", claims.PrincipalID())
	assert.False(t, claims.IsImpersonation())
}

func TestJWT_Expired(t *testing.T) {
	svc := NewJWTService(testAppConfig("tenant"))

	token, _, err := svc.Generate("tenant-1", "", time.Now().Add(-2*time.Hour), time.Hour)
	require.NoError(t, err)

	_, err = svc.Validate(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWT_AppsAreIsolated(t *testing.T) {
	adminCfg := testAppConfig("admin")
	tenantCfg := testAppConfig("tenant")
	tenantCfg.Secret = adminCfg.Secret

	admin := NewJWTService(adminCfg)
	tenant := NewJWTService(tenantCfg)

	token, _, err := admin.Generate("admin-1", "", time.Now(), 0)
	require.NoError(t, err)

	_, err = tenant.Validate(token)
	assert.ErrorIs(t, err, ErrWrongApp, "same secret, different audience must still be rejected")
}

func TestJWT_TamperedSignature(t *testing.T) {
	svc := NewJWTService(testAppConfig("tenant"))
	token, _, err := svc.Generate("tenant-1", "", time.Now(), 0)
	require.NoError(t, err)

	_, err = svc.Validate(token + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestProvider_SignInWithPassword(t *testing.T) {
	p := newTestProvider("tenant")
	ctx := context.Background()

	id, err := p.CreateIdentity(ctx, " Owner@Example.com ", "secret123")
	require.NoError(t, err)

	got, err := p.SignInWithPassword(ctx, "owner@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = p.SignInWithPassword(ctx, "owner@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = p.SignInWithPassword(ctx, "nobody@example.com", "secret123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestProvider_PasswordPolicy(t *testing.T) {
	p := newTestProvider("admin")
	ctx := context.Background()

	_, err := p.CreateIdentity(ctx, "a@example.com", "12345")
	assert.ErrorIs(t, err, ErrWeakPassword)

	id, err := p.CreateIdentity(ctx, "a@example.com", "123456")
	require.NoError(t, err)

	assert.ErrorIs(t, p.UpdateIdentity(ctx, id, "", "abc"), ErrWeakPassword)
	require.NoError(t, p.UpdateIdentity(ctx, id, "b@example.com", "newpass1"))

	_, err = p.SignInWithPassword(ctx, "b@example.com", "newpass1")
	assert.NoError(t, err)
}

func TestProvider_DuplicateEmail(t *testing.T) {
	p := newTestProvider("tenant")
	ctx := context.Background()

	_, err := p.CreateIdentity(ctx, "dup@example.com", "secret123")
	require.NoError(t, err)
	_, err = p.CreateIdentity(ctx, "dup@example.com", "secret123")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestProvider_SignOutRevokesEarlierCredentials(t *testing.T) {
	p := newTestProvider("tenant")
	ctx := context.Background()

	issued := time.Now().Add(-time.Minute)
	p.now = func() time.Time { return issued }
	token, _, err := p.IssueCredential("tenant-1", 0)
	require.NoError(t, err)

	p.now = time.Now
	_, err = p.VerifyCredential(ctx, token)
	require.NoError(t, err)

	require.NoError(t, p.SignOut(ctx, "tenant-1"))

	_, err = p.VerifyCredential(ctx, token)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestProvider_SignOutWithinTheSameSecond(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	p := NewProvider(testAppConfig("tenant"), newMemoryCreds(), redisclient.NewWithRedis(rdb))
	ctx := context.Background()
	second := time.Now().Add(-time.Minute).Truncate(time.Second)

	p.now = func() time.Time { return second.Add(200 * time.Millisecond) }
	before, _, err := p.IssueCredential("tenant-1", 0)
	require.NoError(t, err)

	p.now = func() time.Time { return second.Add(700 * time.Millisecond) }
	require.NoError(t, p.SignOut(ctx, "tenant-1"))

	p.now = func() time.Time { return second.Add(900 * time.Millisecond) }
	after, _, err := p.IssueCredential("tenant-1", 0)
	require.NoError(t, err)

	_, err = p.VerifyCredential(ctx, before)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	_, err = p.VerifyCredential(ctx, after)
	assert.NoError(t, err, "a credential issued after sign-out stays valid")
}

func TestProvider_SignOutCoversTheSameInstant(t *testing.T) {
	p := newTestProvider("tenant")
	ctx := context.Background()

	at := time.Now().Add(-time.Minute)
	p.now = func() time.Time { return at }
	token, _, err := p.IssueCredential("tenant-1", 0)
	require.NoError(t, err)
	require.NoError(t, p.SignOut(ctx, "tenant-1"))

	_, err = p.VerifyCredential(ctx, token)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestProvider_ImpersonationClaim(t *testing.T) {
	p := newTestProvider("tenant")

	_, _, err := p.IssueImpersonationCredential("tenant-1", "", time.Hour)
	assert.Error(t, err)

	token, expiresAt, err := p.IssueImpersonationCredential("tenant-1", "admin-9", 24*time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), expiresAt, 5*time.Second)

	claims, err := p.VerifyCredential(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, claims.IsImpersonation())
	assert.Equal(t, "admin-9", claims.ImpersonatedBy)
	assert.Equal(t, "tenant-1", claims.PrincipalID())
}
