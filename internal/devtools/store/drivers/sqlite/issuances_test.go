package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aussiebroadwan/dbaccess-devtools/internal/devtools/domain"
	"github.com/aussiebroadwan/dbaccess-devtools/internal/devtools/store"
	"github.com/aussiebroadwan/dbaccess-devtools/internal/devtools/store/drivers/sqlite"
	"github.com/aussiebroadwan/dbaccess-devtools/pkg/idx"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.NewStore(sqlite.FileDSN(filepath.Join(t.TempDir(), "history.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.ApplyMigrations())
	return s
}

func issuanceAt(created time.Time, kind, subject string) domain.Issuance {
	iat := created.Truncate(time.Second)
	exp := iat.Add(5 * time.Minute)
	return domain.Issuance{
		ID:          idx.NewAt(created),
		Kind:        kind,
		Subject:     subject,
		Algorithm:   "ES256",
		IssuedAt:    &iat,
		ExpiresAt:   &exp,
		Fingerprint: "fp-" + subject + "-" + created.Format(time.RFC3339Nano),
		CreatedAt:   created.Truncate(time.Millisecond).UTC(),
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.ApplyMigrations())
	list, err := s.Issuances().List(context.Background(), 0)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestRecordAndGet(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	want := issuanceAt(time.Now().UTC(), domain.KindValid, "alice")
	require.NoError(t, s.Issuances().Record(ctx, want))

	got, err := s.Issuances().Get(ctx, want.ID)
	require.NoError(t, err)
	require.Equal(t, want.ID, got.ID)
	require.Equal(t, "alice", got.Subject)
	require.True(t, got.Valid())
	require.True(t, want.IssuedAt.Equal(*got.IssuedAt))
	require.True(t, want.ExpiresAt.Equal(*got.ExpiresAt))
	require.True(t, want.CreatedAt.Equal(got.CreatedAt))

	byFP, err := s.Issuances().FindByFingerprint(ctx, want.Fingerprint)
	require.NoError(t, err)
	require.Equal(t, want.ID, byFP.ID)

	err = s.Issuances().Record(ctx, want)
	require.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestGetNotFound(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.Issuances().Get(ctx, idx.New())
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.Issuances().FindByFingerprint(ctx, "nope")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRecordWithoutClaims(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	iss := domain.Issuance{
		ID:          idx.New(),
		Kind:        "parse_error",
		Fingerprint: "fp",
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, s.Issuances().Record(ctx, iss))

	got, err := s.Issuances().Get(ctx, iss.ID)
	require.NoError(t, err)
	require.Nil(t, got.IssuedAt)
	require.Nil(t, got.ExpiresAt)
	require.Empty(t, got.Subject)
	require.False(t, got.ExpiredAt(time.Now()))

	require.Error(t, s.Issuances().Record(ctx, domain.Issuance{Kind: "valid"}))
}

func TestListNewestFirst(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, sub := range []string{"alice", "bob", "charlie"} {
		require.NoError(t, s.Issuances().Record(ctx, issuanceAt(base.Add(time.Duration(i)*time.Minute), domain.KindValid, sub)))
	}

	all, err := s.Issuances().List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "charlie", all[0].Subject)
	require.Equal(t, "alice", all[2].Subject)

	two, err := s.Issuances().List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, two, 2)
	require.Equal(t, "bob", two[1].Subject)
}

func TestPrune(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	old := issuanceAt(base, "expired", "alice")
	recent := issuanceAt(base.Add(48*time.Hour), domain.KindValid, "bob")
	require.NoError(t, s.Issuances().Record(ctx, old))
	require.NoError(t, s.Issuances().Record(ctx, recent))

	n, err := s.Issuances().Prune(ctx, base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	_, err = s.Issuances().Get(ctx, old.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.Issuances().Get(ctx, recent.ID)
	require.NoError(t, err)
}
