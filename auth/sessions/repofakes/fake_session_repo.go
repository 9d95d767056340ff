package fakesessionrepo

import (
	"sort"
	"sync"
	"time"

	"github.com/jrsteele09/synofs/auth/sessions"
	apperrors "github.com/jrsteele09/synofs/internal/errors"
	"github.com/pkg/errors"
)

var _ sessions.Repo = (*FakeSessionRepo)(nil)

// FakeSessionRepo is an in-memory sessions.Repo that counts writes and can be
// told to fail, for exercising the manager's error paths.
type FakeSessionRepo struct {
	records map[string]*sessions.SessionRecord
	writes  int
	failErr error // returned by every call while set
	lock    sync.RWMutex
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{
		records: make(map[string]*sessions.SessionRecord),
	}
}

func key(endpoint, user string) string {
	return endpoint + "\x00" + user
}

// FailWith makes every subsequent call return err. Pass nil to recover.
func (sr *FakeSessionRepo) FailWith(err error) {
	sr.lock.Lock()
	defer sr.lock.Unlock()
	sr.failErr = err
}

// Writes returns the number of mutating calls that reached the store.
func (sr *FakeSessionRepo) Writes() int {
	sr.lock.RLock()
	defer sr.lock.RUnlock()
	return sr.writes
}

func (sr *FakeSessionRepo) IsLoggedIn(endpoint, user string) (bool, error) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()
	if sr.failErr != nil {
		return false, sr.failErr
	}
	return sr.records[key(endpoint, user)].Active(), nil
}

func (sr *FakeSessionRepo) SaveSession(endpoint, user, deviceID, token string) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()
	if sr.failErr != nil {
		return errors.Wrap(sr.failErr, "SaveSession")
	}
	sr.writes++

	now := time.Now()
	k := key(endpoint, user)
	rec, ok := sr.records[k]
	if !ok {
		rec = &sessions.SessionRecord{Endpoint: endpoint, User: user, CreatedAt: now}
		sr.records[k] = rec
	}
	if deviceID != "" {
		rec.DeviceID = deviceID
	}
	rec.SessionToken = token
	rec.Invalid = false
	rec.UpdatedAt = now
	return nil
}

func (sr *FakeSessionRepo) ClearSession(endpoint, user string) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()
	if sr.failErr != nil {
		return errors.Wrap(sr.failErr, "ClearSession")
	}
	sr.writes++
	delete(sr.records, key(endpoint, user))
	return nil
}

func (sr *FakeSessionRepo) RevokeSession(endpoint, user string) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()
	if sr.failErr != nil {
		return errors.Wrap(sr.failErr, "RevokeSession")
	}
	sr.writes++
	if rec, ok := sr.records[key(endpoint, user)]; ok {
		rec.SessionToken = ""
		rec.Invalid = true
		rec.UpdatedAt = time.Now()
	}
	return nil
}

func (sr *FakeSessionRepo) GetDeviceID(endpoint, user string) (string, bool, error) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()
	if sr.failErr != nil {
		return "", false, sr.failErr
	}
	rec, ok := sr.records[key(endpoint, user)]
	if !ok || rec.DeviceID == "" {
		return "", false, nil
	}
	return rec.DeviceID, true, nil
}

func (sr *FakeSessionRepo) GetSession(endpoint, user string) (*sessions.SessionRecord, error) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()
	if sr.failErr != nil {
		return nil, sr.failErr
	}
	rec, ok := sr.records[key(endpoint, user)]
	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}
	cp := *rec
	return &cp, nil
}

func (sr *FakeSessionRepo) List() ([]*sessions.SessionRecord, error) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()
	if sr.failErr != nil {
		return nil, sr.failErr
	}
	out := make([]*sessions.SessionRecord, 0, len(sr.records))
	for _, rec := range sr.records {
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Endpoint != out[j].Endpoint {
			return out[i].Endpoint < out[j].Endpoint
		}
		return out[i].User < out[j].User
	})
	return out, nil
}

func (sr *FakeSessionRepo) Close() error {
	return nil
}
