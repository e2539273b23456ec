package fs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// indexEntry maps a unique key (email or username) to the owning user
type indexEntry struct {
	Key       string    `json:"key"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// uniqueIndex enforces uniqueness of a key across users with one file per
// key. An entry is written to a temp file and hard linked into place, so
// exactly one of several concurrent reservations of the same key succeeds,
// across processes sharing the directory, and readers never see a partial
// entry.
//
//	{StoragePath}/
//	└── emails/
//	    ├── jane%40example.com.json   # {"key": "jane@example.com", "user_id": "abc123"}
//	    └── ...
type uniqueIndex struct {
	dir string
}

var errTaken = errors.New("key already reserved")

// Escaped keys longer than this are stored under their digest. Digest names
// cannot collide with escaped keys: emails always carry an '@' and
// usernames are at most 64 runes.
const maxEscapedKeyLen = 200

func (ix uniqueIndex) path(key string) string {
	name := url.PathEscape(key)
	if len(name) > maxEscapedKeyLen {
		sum := sha256.Sum256([]byte(key))
		name = "sha256-" + hex.EncodeToString(sum[:])
	}
	return filepath.Join(ix.dir, name+".json")
}

// reserve claims key for userID. Returns errTaken if another user holds it.
func (ix uniqueIndex) reserve(key, userID string) error {
	if err := os.MkdirAll(ix.dir, 0755); err != nil {
		return err
	}
	data, err := json.Marshal(indexEntry{Key: key, UserID: userID, CreatedAt: time.Now()})
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(ix.dir, ".reserve-*")
	if err != nil {
		return fmt.Errorf("failed to create index entry: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	_, err = tmp.Write(data)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write index entry: %w", err)
	}

	if err := os.Link(tmpPath, ix.path(key)); err != nil {
		if os.IsExist(err) {
			if owner, lerr := ix.lookup(key); lerr == nil && owner == userID {
				return nil
			}
			return errTaken
		}
		return fmt.Errorf("failed to link index entry: %w", err)
	}
	return nil
}

// lookup returns the user id holding key, or os.ErrNotExist
func (ix uniqueIndex) lookup(key string) (string, error) {
	var entry indexEntry
	if err := readJSONFile(ix.path(key), &entry); err != nil {
		return "", err
	}
	return entry.UserID, nil
}

// release frees key if it is held by userID
func (ix uniqueIndex) release(key, userID string) error {
	owner, err := ix.lookup(key)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if owner != userID {
		return nil
	}
	if err := os.Remove(ix.path(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
