package store

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{
		Type:       DatabaseTypeSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "users.db"),
	})
	require.NoError(t, err)
	return s
}

func testUser(username string) *User {
	return &User{
		Username:    username,
		AukSalt:     []byte("auk salt material 32 bytes long!"),
		SRPGroup:    2048,
		SRPSalt:     []byte("srp salt material 32 bytes long!"),
		SRPVerifier: []byte{0x01, 0x02, 0x03, 0x04},
		KeyEnc:      []byte("encrypted vault key container"),
	}
}

func TestAddGetUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddUser(ctx, testUser("alice")))

	got, err := s.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, 2048, got.SRPGroup)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, got.SRPVerifier)

	_, err = s.GetUser(ctx, "bob")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestAddUser_Duplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddUser(ctx, testUser("alice")))
	assert.ErrorIs(t, s.AddUser(ctx, testUser("alice")), ErrDuplicateUser)
}

func TestHasUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok, err := s.HasUser(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.AddUser(ctx, testUser("alice")))

	ok, err = s.HasUser(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestListUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddUser(ctx, testUser("carol")))
	require.NoError(t, s.AddUser(ctx, testUser("alice")))

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)
	assert.Equal(t, "carol", users[1].Username)
}

func TestDeleteUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddUser(ctx, testUser("alice")))
	require.NoError(t, s.DeleteUser(ctx, "alice"))

	_, err := s.GetUser(ctx, "alice")
	assert.ErrorIs(t, err, ErrUserNotFound)

	assert.ErrorIs(t, s.DeleteUser(ctx, "alice"), ErrUserNotFound)
}

func TestSRPUser(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AddUser(context.Background(), testUser("alice")))

	user, err := s.SRPUser("alice")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, 2048, user.Group.Bits)
	assert.Equal(t, big.NewInt(0x01020304), user.Verifier)

	missing, err := s.SRPUser("bob")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSRPUser_BadGroup(t *testing.T) {
	s := newTestStore(t)
	bad := testUser("mallory")
	bad.SRPGroup = 512
	require.NoError(t, s.AddUser(context.Background(), bad))

	_, err := s.SRPUser("mallory")
	assert.Error(t, err)
}
