package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)

	session := &Session{
		Server:      "https://matrix.example.org",
		UserID:      "@alice:example.org",
		AccessToken: "tok",
		DeviceID:    "DEV",
		SyncCursor:  "s100",
	}
	require.NoError(t, s.Save(session))

	loaded, err := s.Load("@alice:example.org")
	require.NoError(t, err)
	assert.Equal(t, session, loaded)
}

func TestLoadUnknownUser(t *testing.T) {
	s := openTestStore(t)

	loaded, err := s.Load("@nobody:example.org")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestSaveCursor(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Save(&Session{UserID: "@alice:example.org", AccessToken: "tok"}))
	require.NoError(t, s.SaveCursor("@alice:example.org", "s200"))

	loaded, err := s.Load("@alice:example.org")
	require.NoError(t, err)
	assert.Equal(t, "s200", loaded.SyncCursor)
	assert.Equal(t, "tok", loaded.AccessToken, "cursor update keeps the rest")

	assert.Error(t, s.SaveCursor("@nobody:example.org", "s1"))
}

func TestDeleteAndUsers(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Save(&Session{UserID: "@a:example.org"}))
	require.NoError(t, s.Save(&Session{UserID: "@b:example.org"}))

	users, err := s.Users()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"@a:example.org", "@b:example.org"}, users)

	require.NoError(t, s.Delete("@a:example.org"))
	users, err = s.Users()
	require.NoError(t, err)
	assert.Equal(t, []string{"@b:example.org"}, users)
}

func TestSaveRequiresUserID(t *testing.T) {
	s := openTestStore(t)
	assert.Error(t, s.Save(&Session{AccessToken: "tok"}))
}
