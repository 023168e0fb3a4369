package service

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"tasmota_mqtt/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSigningKey = "test-signing-key"

var testAuthConfig = AuthConfig{SigningKey: testSigningKey, TokenTTL: time.Hour}

// userStore is an in-memory repository.Authorization.
type userStore struct {
	users     []models.User
	countErr  error
	createErr error
	lookupErr error
}

func (s *userStore) Create(username, hash string, canControl bool) (int, error) {
	if s.createErr != nil {
		return 0, s.createErr
	}
	id := len(s.users) + 1
	s.users = append(s.users, models.User{ID: id, Username: username, PasswordHash: hash, CanControl: canControl})
	return id, nil
}

func (s *userStore) GetByUsername(username string) (*models.User, error) {
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	for i := range s.users {
		if s.users[i].Username == username {
			u := s.users[i]
			return &u, nil
		}
	}
	return nil, nil
}

func (s *userStore) GetByID(id int) (*models.User, error) {
	for i := range s.users {
		if s.users[i].ID == id {
			u := s.users[i]
			return &u, nil
		}
	}
	return nil, nil
}

func (s *userStore) Count() (int, error) { return len(s.users), s.countErr }

func (s *userStore) SetCanControl(username string, canControl bool) error {
	for i := range s.users {
		if s.users[i].Username == username {
			s.users[i].CanControl = canControl
			return nil
		}
	}
	return errors.New("no such user")
}

func signWith(t *testing.T, method jwt.SigningMethod, key any, claims *Claims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return tok
}

func validClaims(userID int) *Claims {
	now := time.Now()
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		UserID:     userID,
		CanControl: true,
	}
}

func TestAuthService_FirstUserControlsRelays(t *testing.T) {
	store := &userStore{}
	svc := NewAuthService(store, testAuthConfig)

	first, err := svc.SignUp("maker", "pla")
	require.NoError(t, err)
	second, err := svc.SignUp("guest", "petg")
	require.NoError(t, err)

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
	assert.True(t, store.users[0].CanControl)
	assert.False(t, store.users[1].CanControl)
	assert.NotEqual(t, "pla", store.users[0].PasswordHash)
	assert.NoError(t, verifyPassword(store.users[0].PasswordHash, "pla"))
}

func TestAuthService_SignUpFailures(t *testing.T) {
	t.Run("empty password", func(t *testing.T) {
		store := &userStore{}
		_, err := NewAuthService(store, testAuthConfig).SignUp("maker", "   ")
		require.Error(t, err)
		assert.Empty(t, store.users)
	})
	t.Run("count fails", func(t *testing.T) {
		store := &userStore{countErr: errors.New("db down")}
		_, err := NewAuthService(store, testAuthConfig).SignUp("maker", "pla")
		require.Error(t, err)
		assert.Empty(t, store.users)
	})
	t.Run("create fails", func(t *testing.T) {
		store := &userStore{createErr: errors.New("UNIQUE constraint failed")}
		_, err := NewAuthService(store, testAuthConfig).SignUp("maker", "pla")
		require.Error(t, err)
	})
}

func TestAuthService_TokenCarriesPermission(t *testing.T) {
	store := &userStore{}
	svc := NewAuthService(store, testAuthConfig)
	_, err := svc.SignUp("maker", "pla")
	require.NoError(t, err)
	_, err = svc.SignUp("guest", "petg")
	require.NoError(t, err)

	tok, err := svc.GenerateToken("maker", "pla")
	require.NoError(t, err)
	caller, err := svc.ParseToken(tok)
	require.NoError(t, err)
	assert.Equal(t, Caller{UserID: 1, CanControl: true}, caller)

	tok, err = svc.GenerateToken("guest", "petg")
	require.NoError(t, err)
	caller, err = svc.ParseToken(tok)
	require.NoError(t, err)
	assert.Equal(t, Caller{UserID: 2, CanControl: false}, caller)

	// a grant only shows up in tokens issued afterwards
	require.NoError(t, store.SetCanControl("guest", true))
	caller, err = svc.ParseToken(tok)
	require.NoError(t, err)
	assert.False(t, caller.CanControl)
	tok, err = svc.GenerateToken("guest", "petg")
	require.NoError(t, err)
	caller, err = svc.ParseToken(tok)
	require.NoError(t, err)
	assert.True(t, caller.CanControl)
}

func TestAuthService_GenerateTokenFailures(t *testing.T) {
	hash, err := hashPassword("pla")
	require.NoError(t, err)

	cases := []struct {
		name    string
		store   *userStore
		user    string
		pass    string
		wantErr error
	}{
		{name: "unknown user", store: &userStore{}, user: "ghost", pass: "pla", wantErr: ErrUserNotFound},
		{
			name:    "wrong password",
			store:   &userStore{users: []models.User{{ID: 1, Username: "maker", PasswordHash: hash}}},
			user:    "maker",
			pass:    "abs",
			wantErr: ErrInvalidPassword,
		},
		{name: "lookup fails", store: &userStore{lookupErr: errors.New("query failed")}, user: "maker", pass: "pla"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewAuthService(tc.store, testAuthConfig).GenerateToken(tc.user, tc.pass)
			require.Error(t, err)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}

func TestAuthService_ParseTokenRejects(t *testing.T) {
	svc := NewAuthService(&userStore{}, testAuthConfig)

	expired := validClaims(11)
	past := time.Now().Add(-2 * time.Hour)
	expired.ExpiresAt = jwt.NewNumericDate(past)
	expired.IssuedAt = jwt.NewNumericDate(past.Add(-time.Minute))

	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	cases := map[string]string{
		"malformed":       "not-a-jwt",
		"foreign key":     signWith(t, jwt.SigningMethodHS256, []byte("different-key"), validClaims(5)),
		"expired":         signWith(t, jwt.SigningMethodHS256, []byte(testSigningKey), expired),
		"non-HMAC method": signWith(t, jwt.SigningMethodRS256, rsaKey, validClaims(12)),
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ParseToken(tok)
			assert.Error(t, err)
		})
	}
}

func TestAuthService_NoSigningKey(t *testing.T) {
	svc := NewAuthService(&userStore{}, AuthConfig{})
	_, err := svc.issueToken(1, true)
	assert.ErrorIs(t, err, ErrNoSigningKey)
	_, err = svc.ParseToken("whatever")
	assert.ErrorIs(t, err, ErrNoSigningKey)
}

func TestNewAuthService_DefaultTTL(t *testing.T) {
	svc := NewAuthService(&userStore{}, AuthConfig{SigningKey: testSigningKey})
	assert.Equal(t, defaultTokenTTL, svc.tokenTTL)
}
