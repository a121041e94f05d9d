//go:build !integration

package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"github.com/jmobrien1/mdraft/internal/contenthash"
	"github.com/jmobrien1/mdraft/internal/domain"
	"github.com/jmobrien1/mdraft/internal/domain/model"
	"github.com/jmobrien1/mdraft/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// passTxManager runs the callback outside any real transaction.
type passTxManager struct{}

func (passTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, nil)
}

// memJobRepo is a small in-memory implementation used by unit tests. It
// enforces the same live-(fingerprint, owner) uniqueness as the real table.
type memJobRepo struct {
	mu        sync.RWMutex
	store     map[string]*model.ConversionJob
	createErr error
	saveErr   error
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{store: make(map[string]*model.ConversionJob)}
}

func (m *memJobRepo) Create(ctx context.Context, tx repository.Tx, job *model.ConversionJob) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.store {
		if j.Fingerprint == job.Fingerprint && j.Owner.Key() == job.Owner.Key() &&
			j.Status != model.ConversionStatusCancelled {
			return domain.ErrAlreadyExists
		}
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	cp := *job
	m.store[job.ID] = &cp
	return nil
}

func (m *memJobRepo) Save(ctx context.Context, tx repository.Tx, job *model.ConversionJob) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.store[job.ID] = &cp
	return nil
}

func (m *memJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ConversionJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memJobRepo) FindCompleted(ctx context.Context, tx repository.Tx, fingerprint string, owner model.Owner) (*model.ConversionJob, error) {
	return m.findWhere(fingerprint, owner, func(j *model.ConversionJob) bool {
		return j.Status == model.ConversionStatusCompleted
	})
}

func (m *memJobRepo) FindLive(ctx context.Context, tx repository.Tx, fingerprint string, owner model.Owner) (*model.ConversionJob, error) {
	return m.findWhere(fingerprint, owner, func(j *model.ConversionJob) bool {
		return j.Status != model.ConversionStatusCancelled
	})
}

func (m *memJobRepo) findWhere(fingerprint string, owner model.Owner, pred func(*model.ConversionJob) bool) (*model.ConversionJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, j := range m.store {
		if j.Fingerprint == fingerprint && j.Owner.Key() == owner.Key() && pred(j) {
			cp := *j
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memJobRepo) ListByOwner(ctx context.Context, tx repository.Tx, owner model.Owner, offset, limit int) ([]*model.ConversionJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.ConversionJob
	for _, j := range m.store {
		if j.Owner.Key() == owner.Key() {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memJobRepo) CancelIfQueued(ctx context.Context, tx repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	if j.Status != model.ConversionStatusQueued {
		return domain.ErrInvalidTransition
	}
	j.Status = model.ConversionStatusCancelled
	j.UpdatedAt = time.Now()
	return nil
}

func (m *memJobRepo) ClaimQueued(ctx context.Context, tx repository.Tx, job *model.ConversionJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.store[job.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Status != model.ConversionStatusQueued && cur.Status != model.ConversionStatusFailed {
		return domain.ErrInvalidTransition
	}
	cp := *job
	m.store[job.ID] = &cp
	return nil
}

func (m *memJobRepo) UpdateProcessing(ctx context.Context, tx repository.Tx, job *model.ConversionJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.store[job.ID]
	if !ok || cur.Status != model.ConversionStatusProcessing {
		return domain.ErrInvalidTransition
	}
	cp := *job
	m.store[job.ID] = &cp
	return nil
}

func (m *memJobRepo) RefInUse(ctx context.Context, tx repository.Tx, ref string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, j := range m.store {
		if j.StoredRef == ref {
			return true, nil
		}
	}
	return false, nil
}

func (m *memJobRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.store, id)
	return nil
}

func (m *memJobRepo) DeleteExpired(ctx context.Context, now time.Time) (int, []string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	var refs []string
	for id, j := range m.store {
		if j.ExpiresAt != nil && j.ExpiresAt.Before(now) {
			deleted++
			refs = append(refs, j.StoredRef)
			delete(m.store, id)
		}
	}
	return deleted, refs, nil
}

// mockAccountRepo lets tests script tier lookups.
type mockAccountRepo struct {
	IsPrivilegedFunc func(ctx context.Context, tx repository.Tx, id string) (bool, error)
}

func (m *mockAccountRepo) Save(ctx context.Context, tx repository.Tx, a *model.Account) error {
	return nil
}
func (m *mockAccountRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Account, error) {
	return nil, domain.ErrNotFound
}
func (m *mockAccountRepo) IsPrivileged(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	if m.IsPrivilegedFunc != nil {
		return m.IsPrivilegedFunc(ctx, tx, id)
	}
	return false, nil
}

// memBlobStore keeps blobs in a map.
type memBlobStore struct {
	mu     sync.Mutex
	blobs  map[string][]byte
	putErr error
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{blobs: make(map[string][]byte)}
}

func (m *memBlobStore) Put(ctx context.Context, data []byte) (string, error) {
	if m.putErr != nil {
		return "", m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := contenthash.SumBytes(data)
	m.blobs[ref] = append([]byte(nil), data...)
	return ref, nil
}

func (m *memBlobStore) Get(ctx context.Context, ref string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[ref]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (m *memBlobStore) Exists(ctx context.Context, ref string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blobs[ref]
	return ok, nil
}

func (m *memBlobStore) Delete(ctx context.Context, ref string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blobs[ref]
	delete(m.blobs, ref)
	return ok, nil
}

// mockQueue records enqueues and can be scripted to fail.
type mockQueue struct {
	mu         sync.Mutex
	enqueued   []string // "queue/jobID"
	EnqueueErr error
}

func (m *mockQueue) Enqueue(ctx context.Context, queue, jobID string) error {
	if m.EnqueueErr != nil {
		return m.EnqueueErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enqueued = append(m.enqueued, queue+"/"+jobID)
	return nil
}

func (m *mockQueue) Dequeue(ctx context.Context, timeout time.Duration, queues ...string) (string, string, error) {
	return "", "", domain.ErrNotFound
}

func (m *mockQueue) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.enqueued...)
}

// mockLimiter scripts the rate limiter.
type mockLimiter struct {
	AllowFunc func(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

func (m *mockLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if m.AllowFunc != nil {
		return m.AllowFunc(ctx, key, limit, window)
	}
	return true, nil
}
