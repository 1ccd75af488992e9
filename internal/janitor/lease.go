package janitor

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"chatsync/pkg/logger"
)

var errNotOwner = errors.New("janitor: lease held by another owner")

// fileLease is a lock file with an expiry, so a crashed holder does not
// block later runs forever.
type fileLease struct {
	path string
	now  func() time.Time
}

type leaseFile struct {
	Owner   string `json:"owner"`
	Expires string `json:"expires"`
}

func newFileLease(dir string, now func() time.Time) *fileLease {
	return &fileLease{path: filepath.Join(dir, "janitor.lock"), now: now}
}

func (l *fileLease) Acquire(owner string, ttl time.Duration) (bool, error) {
	now := l.now()
	b, _ := json.Marshal(leaseFile{Owner: owner, Expires: now.Add(ttl).Format(time.RFC3339Nano)})
	tmp := l.path + "." + owner + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return false, err
	}
	defer os.Remove(tmp)

	// link fails when the lock already exists
	if err := os.Link(tmp, l.path); err == nil {
		logger.Debug("janitor_lease_acquired", "owner", owner)
		return true, nil
	}
	existing, err := l.read()
	if err != nil {
		return false, err
	}
	expires, _ := time.Parse(time.RFC3339Nano, existing.Expires)
	if !expires.Before(now) {
		logger.Debug("janitor_lease_held", "owner", existing.Owner)
		return false, nil
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return false, err
	}
	logger.Info("janitor_lease_taken_over", "owner", owner, "previous", existing.Owner)
	return true, nil
}

func (l *fileLease) Release(owner string) error {
	existing, err := l.read()
	if err != nil {
		return err
	}
	if existing.Owner != owner {
		return errNotOwner
	}
	return os.Remove(l.path)
}

func (l *fileLease) read() (leaseFile, error) {
	var lf leaseFile
	data, err := os.ReadFile(l.path)
	if err != nil {
		return lf, err
	}
	err = json.Unmarshal(data, &lf)
	return lf, err
}
