package auth

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestStaticTokenProvider(t *testing.T) {
	token, ok := StaticTokenProvider(" abc ").Token()
	require.True(t, ok)
	require.Equal(t, "abc", token)

	_, ok = StaticTokenProvider("").Token()
	require.False(t, ok)
}

func TestMemoryTokenProviderInvalidate(t *testing.T) {
	p := NewMemoryTokenProvider("abc")
	_, ok := p.Token()
	require.True(t, ok)

	Invalidate(p)
	_, ok = p.Token()
	require.False(t, ok)

	p.Set("def")
	token, ok := p.Token()
	require.True(t, ok)
	require.Equal(t, "def", token)
}

func TestFileTokenProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	p := &FileTokenProvider{Path: path}

	_, ok := p.Token()
	require.False(t, ok, "missing file means no token")

	require.NoError(t, os.WriteFile(path, []byte("first\n"), 0o600))
	token, ok := p.Token()
	require.True(t, ok)
	require.Equal(t, "first", token)

	p.Invalidate()
	_, ok = p.Token()
	require.False(t, ok, "invalidated token stays hidden")

	require.NoError(t, os.WriteFile(path, []byte("second"), 0o600))
	token, ok = p.Token()
	require.True(t, ok)
	require.Equal(t, "second", token)
}

func TestOfflineAware(t *testing.T) {
	p := OfflineAware(StaticTokenProvider("offline"), "offline")
	_, ok := p.Token()
	require.False(t, ok)

	p = OfflineAware(StaticTokenProvider("real"), "offline")
	token, ok := p.Token()
	require.True(t, ok)
	require.Equal(t, "real", token)

	same := StaticTokenProvider("x")
	require.Equal(t, TokenProvider(same), OfflineAware(same, ""))
}

func TestSubjectFromToken(t *testing.T) {
	tests := []struct {
		name   string
		claims jwt.MapClaims
		want   string
	}{
		{"sub claim", jwt.MapClaims{"sub": "user-1"}, "user-1"},
		{"userId claim", jwt.MapClaims{"userId": "user-2"}, "user-2"},
		{"numeric id", jwt.MapClaims{"id": float64(42)}, "42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SubjectFromToken(signedToken(t, tt.claims))
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}

	_, err := SubjectFromToken(signedToken(t, jwt.MapClaims{"role": "buyer"}))
	require.Error(t, err)

	_, err = SubjectFromToken("not-a-jwt")
	require.Error(t, err)
}

func TestExpiryAware(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	expired := signedToken(t, jwt.MapClaims{"sub": "u1", "exp": now.Add(-time.Minute).Unix()})
	valid := signedToken(t, jwt.MapClaims{"sub": "u1", "exp": now.Add(time.Hour).Unix()})

	_, ok := ExpiryAware(StaticTokenProvider(expired), clock).Token()
	require.False(t, ok)

	token, ok := ExpiryAware(StaticTokenProvider(valid), clock).Token()
	require.True(t, ok)
	require.Equal(t, valid, token)

	opaque, ok := ExpiryAware(StaticTokenProvider("opaque-session-token"), clock).Token()
	require.True(t, ok, "non-JWT tokens pass through")
	require.Equal(t, "opaque-session-token", opaque)
}

func TestIsUnauthorized(t *testing.T) {
	require.True(t, IsUnauthorized(fmt.Errorf("list conversations: %w", ErrUnauthorized)))
	require.False(t, IsUnauthorized(ErrNoToken))
}
