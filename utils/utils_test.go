package utils

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"SlackScheduler/internal/core"
	"SlackScheduler/internal/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestSealerRoundTrip(t *testing.T) {
	s, err := NewSealer(testKey)
	require.NoError(t, err)

	enc, err := s.Encrypt("xoxp-secret")
	require.NoError(t, err)
	assert.NotContains(t, enc, "xoxp")

	again, err := s.Encrypt("xoxp-secret")
	require.NoError(t, err)
	assert.NotEqual(t, enc, again, "nonce must differ per seal")

	dec, err := s.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, "xoxp-secret", dec)

	empty, err := s.Encrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", empty)
}

func TestSealerRejectsShortKeyAndTampering(t *testing.T) {
	_, err := NewSealer("short")
	assert.Error(t, err)

	s, err := NewSealer(testKey)
	require.NoError(t, err)
	other, err := NewSealer(strings.Repeat("z", 40))
	require.NoError(t, err)

	enc, err := s.Encrypt("token")
	require.NoError(t, err)
	_, err = other.Decrypt(enc)
	assert.Error(t, err)
	_, err = s.Decrypt("!!not base64")
	assert.Error(t, err)
}

func TestSealedCredentials(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()
	sealer, err := NewSealer(testKey)
	require.NoError(t, err)
	creds := NewSealedCredentials(store, sealer)

	owner := core.Owner{UserID: "U1", TeamID: "T1"}
	exp := time.Now().Add(time.Hour).UTC()
	require.NoError(t, creds.UpsertCredential(ctx, core.Credential{Owner: owner, AccessToken: "xoxp-1", RefreshToken: "xoxe-1", ExpiresAt: exp}))

	raw, ok, err := store.GetCredential(ctx, owner)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEqual(t, "xoxp-1", raw.AccessToken)

	got, ok, err := creds.GetCredential(ctx, owner)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "xoxp-1", got.AccessToken)
	assert.Equal(t, "xoxe-1", got.RefreshToken)

	_, ok, err = creds.GetCredential(ctx, core.Owner{UserID: "U2", TeamID: "T1"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseScheduledFor(t *testing.T) {
	ist, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	tests := []struct {
		in   string
		loc  *time.Location
		want time.Time
	}{
		{"2026-04-01T10:30:00Z", nil, time.Date(2026, 4, 1, 10, 30, 0, 0, time.UTC)},
		{"2026-04-01T10:30:00.500+02:00", nil, time.Date(2026, 4, 1, 8, 30, 0, 500e6, time.UTC)},
		{"2026-04-01T10:30", ist, time.Date(2026, 4, 1, 5, 0, 0, 0, time.UTC)},
		{"1775039400", nil, time.Unix(1775039400, 0).UTC()},
	}
	for _, tt := range tests {
		got, err := ParseScheduledFor(tt.in, tt.loc)
		require.NoError(t, err, tt.in)
		assert.True(t, tt.want.Equal(got), "%s: got %s want %s", tt.in, got, tt.want)
	}

	_, err = ParseScheduledFor("tomorrow", nil)
	assert.Error(t, err)
	_, err = ParseScheduledFor("", nil)
	assert.Error(t, err)
}

func TestChannelCache(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("skip: TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	rdb, err := NewRedis(ctx, url)
	if err != nil {
		t.Skipf("skip: redis not available: %v", err)
	}
	defer rdb.Close()

	cache := NewChannelCache(rdb, time.Minute)
	key := ChannelCacheKey(core.Owner{UserID: "U1", TeamID: "T1"}, "tok-"+time.Now().String())
	defer rdb.Del(ctx, key)

	_, ok := cache.Get(ctx, key)
	assert.False(t, ok)

	want := []core.Channel{{ID: "C1", Name: "general"}, {ID: "G1", Name: "secret", IsPrivate: true}}
	cache.Set(ctx, key, want)
	got, ok := cache.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, want, got)
}
