//go:build !integration

package web

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
	"github.com/jmobrien1/mdraft/internal/media"
	"github.com/jmobrien1/mdraft/internal/usecase"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

type fakeJobRepo struct {
	mu    sync.Mutex
	store map[string]*model.ConversionJob
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{store: make(map[string]*model.ConversionJob)}
}

func (r *fakeJobRepo) Create(ctx context.Context, tx repository.Tx, job *model.ConversionJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.store {
		if j.Fingerprint == job.Fingerprint && j.Owner.Key() == job.Owner.Key() &&
			j.Status != model.ConversionStatusCancelled {
			return domain.ErrAlreadyExists
		}
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	cp := *job
	r.store[job.ID] = &cp
	return nil
}

func (r *fakeJobRepo) Save(ctx context.Context, tx repository.Tx, job *model.ConversionJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	r.store[job.ID] = &cp
	return nil
}

func (r *fakeJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ConversionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *fakeJobRepo) FindCompleted(ctx context.Context, tx repository.Tx, fp string, o model.Owner) (*model.ConversionJob, error) {
	return r.findWhere(fp, o, func(j *model.ConversionJob) bool {
		return j.Status == model.ConversionStatusCompleted
	})
}

func (r *fakeJobRepo) FindLive(ctx context.Context, tx repository.Tx, fp string, o model.Owner) (*model.ConversionJob, error) {
	return r.findWhere(fp, o, func(j *model.ConversionJob) bool {
		return j.Status != model.ConversionStatusCancelled
	})
}

func (r *fakeJobRepo) findWhere(fp string, o model.Owner, pred func(*model.ConversionJob) bool) (*model.ConversionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.store {
		if j.Fingerprint == fp && j.Owner.Key() == o.Key() && pred(j) {
			cp := *j
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeJobRepo) ListByOwner(ctx context.Context, tx repository.Tx, o model.Owner, offset, limit int) ([]*model.ConversionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.ConversionJob
	for _, j := range r.store {
		if j.Owner.Key() == o.Key() {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeJobRepo) CancelIfQueued(ctx context.Context, tx repository.Tx, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	if j.Status != model.ConversionStatusQueued {
		return domain.ErrInvalidTransition
	}
	j.Status = model.ConversionStatusCancelled
	return nil
}

func (r *fakeJobRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.store[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.store, id)
	return nil
}

func (r *fakeJobRepo) RefInUse(ctx context.Context, tx repository.Tx, ref string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.store {
		if j.StoredRef == ref {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeJobRepo) ClaimQueued(ctx context.Context, tx repository.Tx, job *model.ConversionJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.store[job.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Status != model.ConversionStatusQueued && cur.Status != model.ConversionStatusFailed {
		return domain.ErrInvalidTransition
	}
	cp := *job
	r.store[job.ID] = &cp
	return nil
}

func (r *fakeJobRepo) UpdateProcessing(ctx context.Context, tx repository.Tx, job *model.ConversionJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.store[job.ID]
	if !ok || cur.Status != model.ConversionStatusProcessing {
		return domain.ErrInvalidTransition
	}
	cp := *job
	r.store[job.ID] = &cp
	return nil
}

func (r *fakeJobRepo) DeleteExpired(ctx context.Context, now time.Time) (int, []string, error) {
	return 0, nil, nil
}

type passTxManager struct{}

func (passTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, nil)
}

type fakeAccountRepo struct{}

func (fakeAccountRepo) Save(ctx context.Context, tx repository.Tx, a *model.Account) error {
	return nil
}
func (fakeAccountRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Account, error) {
	return nil, domain.ErrNotFound
}
func (fakeAccountRepo) IsPrivileged(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	return false, nil
}

type fakeBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{blobs: make(map[string][]byte)}
}

func (b *fakeBlobStore) Put(ctx context.Context, data []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ref := contenthash.SumBytes(data)
	b.blobs[ref] = append([]byte(nil), data...)
	return ref, nil
}

func (b *fakeBlobStore) Get(ctx context.Context, ref string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.blobs[ref]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return d, nil
}

func (b *fakeBlobStore) Exists(ctx context.Context, ref string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.blobs[ref]
	return ok, nil
}

func (b *fakeBlobStore) Delete(ctx context.Context, ref string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.blobs[ref]
	delete(b.blobs, ref)
	return ok, nil
}

type fakeQueue struct {
	mu      sync.Mutex
	entries []string
}

func (q *fakeQueue) Enqueue(ctx context.Context, queue, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, queue+"/"+jobID)
	return nil
}

func (q *fakeQueue) Dequeue(ctx context.Context, timeout time.Duration, queues ...string) (string, string, error) {
	return "", "", domain.ErrNotFound
}

type allowAllLimiter struct{}

func (allowAllLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return true, nil
}

type okPinger struct{ err error }

func (p okPinger) Ping(ctx context.Context) error { return p.err }

type testEnv struct {
	server *Server
	repo   *fakeJobRepo
	queue  *fakeQueue
	blobs  *fakeBlobStore
}

func newTestEnv() *testEnv {
	repo := newFakeJobRepo()
	queue := &fakeQueue{}
	blobs := newFakeBlobStore()
	log := testLogger()

	intake := usecase.NewIntakeUseCase(repo, fakeAccountRepo{}, blobs, queue, allowAllLimiter{}, usecase.IntakeOptions{
		Limits:             media.SizeLimits{}.Normalize(),
		RateLimitPerMinute: 1000,
		EnqueueRetries:     1,
		RetentionTTL:       time.Hour,
	}, log)
	jobs := usecase.NewJobUseCase(repo, blobs, queue, passTxManager{}, log)
	auth := NewVisitorAuth("test-secret", false, time.Hour)

	srv := NewServer(intake, jobs, auth, okPinger{}, okPinger{}, ServerOptions{
		APIKeys: map[string]string{"key-123": "acct-1"},
	}, log)
	return &testEnv{server: srv, repo: repo, queue: queue, blobs: blobs}
}
