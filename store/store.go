// Package store persists account sessions between runs: access token,
// device id and the sync cursor, keyed by user id. It lets a restarted
// process resume syncing where it left off instead of re-logging-in and
// replaying a full catch-up.
package store

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var sessionBucket = []byte("sessions")

// Session is one persisted account.
type Session struct {
	Server      string `json:"server"`
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
	DeviceID    string `json:"device_id,omitempty"`
	SyncCursor  string `json:"sync_cursor,omitempty"`
}

// Store is a bolt-backed session cache. Safe for concurrent use.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the store at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, errors.Wrap(err, "open store")
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err2 := tx.CreateBucketIfNotExists(sessionBucket)
		return err2
	})
	if err != nil {
		db.Close() //nolint:errcheck
		return nil, errors.Wrap(err, "create bucket")
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save upserts a session, keyed by its user id.
func (s *Store) Save(session *Session) error {
	if session.UserID == "" {
		return errors.New("session has no user id")
	}

	data, err := json.Marshal(session)
	if err != nil {
		return errors.Wrap(err, "marshal session")
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionBucket).Put([]byte(session.UserID), data)
	})
}

// Load returns the session for a user id, or nil when none is stored.
func (s *Store) Load(userID string) (*Session, error) {
	var session *Session
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(sessionBucket).Get([]byte(userID))
		if v == nil {
			return nil
		}
		session = &Session{}
		return json.Unmarshal(v, session)
	})
	if err != nil {
		return nil, errors.Wrap(err, "load session")
	}
	return session, nil
}

// SaveCursor updates just the sync cursor of a stored session. Saving for
// an unknown user is an error; the session must be stored first.
func (s *Store) SaveCursor(userID, cursor string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionBucket)
		v := b.Get([]byte(userID))
		if v == nil {
			return errors.Errorf("no session for %s", userID)
		}

		session := &Session{}
		if err := json.Unmarshal(v, session); err != nil {
			return errors.Wrap(err, "unmarshal session")
		}
		session.SyncCursor = cursor

		data, err := json.Marshal(session)
		if err != nil {
			return errors.Wrap(err, "marshal session")
		}
		return b.Put([]byte(userID), data)
	})
}

// Delete removes a stored session.
func (s *Store) Delete(userID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionBucket).Delete([]byte(userID))
	})
}

// Users lists the user ids with stored sessions.
func (s *Store) Users() ([]string, error) {
	var users []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionBucket).ForEach(func(k, _ []byte) error {
			users = append(users, string(k))
			return nil
		})
	})
	return users, err
}
