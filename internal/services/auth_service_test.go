package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"matsched/internal/domain"
	"matsched/internal/repositories/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterLoginAndParse(t *testing.T) {
	svc := AuthService{Store: memstore.New(), Secret: []byte("test-secret"), Now: clock}
	ctx := context.Background()

	u, err := svc.Register(ctx, domain.RequestContext{}, RegisterInput{Name: "Wanjiru", Email: "Wanjiru@Example.com", Phone: "0722000111", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, domain.RolePassenger, u.Role)
	assert.Equal(t, "254722000111", u.Phone)
	assert.NotEqual(t, "secret1", u.PasswordHash)

	token, logged, err := svc.Login(ctx, "wanjiru@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, logged.ID)

	rc, err := svc.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, rc.UserID)
	assert.Equal(t, domain.RolePassenger, rc.Role)
	assert.Zero(t, rc.OperatorID)

	_, _, err = svc.Login(ctx, "wanjiru@example.com", "wrong")
	assert.True(t, errors.Is(err, ErrInvalidCredentials))
	_, _, err = svc.Login(ctx, "nobody@example.com", "secret1")
	assert.True(t, errors.Is(err, ErrInvalidCredentials))
}

func TestStaffAccountsCarryOperator(t *testing.T) {
	svc := AuthService{Store: memstore.New(), Secret: []byte("test-secret"), Now: clock}
	ctx := context.Background()
	in := RegisterInput{Name: "Otieno", Email: "otieno@example.com", Phone: "0711000222", Password: "secret1", Role: domain.RoleDriver}

	_, err := svc.Register(ctx, domain.RequestContext{}, in)
	assert.True(t, domain.IsForbidden(err))

	u, err := svc.Register(ctx, admin, in)
	require.NoError(t, err)
	require.NotNil(t, u.OperatorID)

	token, err := svc.Issue(u)
	require.NoError(t, err)
	rc, err := svc.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleDriver, rc.Role)
	assert.Equal(t, testOperator, rc.OperatorID)
}

func TestParseRejectsExpiredAndForeignTokens(t *testing.T) {
	svc := AuthService{Store: memstore.New(), Secret: []byte("test-secret"), Now: clock}
	u, err := svc.Register(context.Background(), domain.RequestContext{}, RegisterInput{Email: "a@example.com", Phone: "0711000333", Password: "secret1"})
	require.NoError(t, err)
	token, err := svc.Issue(u)
	require.NoError(t, err)

	later := svc
	later.Now = func() time.Time { return fixedNow.Add(25 * time.Hour) }
	_, err = later.Parse(token)
	assert.Error(t, err)

	other := svc
	other.Secret = []byte("another-secret")
	_, err = other.Parse(token)
	assert.Error(t, err)
}
