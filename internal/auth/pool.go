// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Taskweave Contributors

package auth

import (
	"context"
	"sync"

	"github.com/samber/oops"
)

// DefaultHashWorkers is the default number of hashing goroutines.
const DefaultHashWorkers = 4

// hashJob is a single unit of work submitted to the pool.
type hashJob struct {
	run  func() (string, bool, error)
	done chan hashResult
}

type hashResult struct {
	encoded string
	ok      bool
	err     error
}

// HashPool runs password hashing on a bounded set of worker goroutines so
// the deliberately slow KDF cannot stall request handling. Callers block
// until their own result is ready; there is no cross-request ordering.
//
// HashPool implements PasswordHasher and can be dropped in wherever a
// direct hasher would be used.
type HashPool struct {
	hasher PasswordHasher
	jobs   chan hashJob

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewHashPool creates a pool of workers wrapping the given hasher.
// workers <= 0 falls back to DefaultHashWorkers.
func NewHashPool(hasher PasswordHasher, workers int) (*HashPool, error) {
	if hasher == nil {
		return nil, oops.Code("HASH_POOL_INVALID").Errorf("hasher is required")
	}
	if workers <= 0 {
		workers = DefaultHashWorkers
	}

	p := &HashPool{
		hasher: hasher,
		jobs:   make(chan hashJob, workers),
	}

	p.wg.Add(workers)
	for range workers {
		go p.worker()
	}

	return p, nil
}

func (p *HashPool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		encoded, ok, err := job.run()
		job.done <- hashResult{encoded: encoded, ok: ok, err: err}
	}
}

// submit queues a job and waits for its result. If ctx expires before a
// worker picks the job up or finishes it, the caller unblocks and the
// eventual result is dropped.
func (p *HashPool) submit(ctx context.Context, run func() (string, bool, error)) (hashResult, error) {
	job := hashJob{run: run, done: make(chan hashResult, 1)}

	select {
	case p.jobs <- job:
	case <-ctx.Done():
		return hashResult{}, oops.Code("HASH_POOL_BUSY").
			With("operation", "enqueue hash job").
			Wrap(ctx.Err())
	}

	select {
	case res := <-job.done:
		return res, nil
	case <-ctx.Done():
		return hashResult{}, oops.Code("HASH_POOL_ABANDONED").
			With("operation", "await hash result").
			Wrap(ctx.Err())
	}
}

// HashContext hashes password on a pool worker.
func (p *HashPool) HashContext(ctx context.Context, password string) (string, error) {
	res, err := p.submit(ctx, func() (string, bool, error) {
		encoded, hashErr := p.hasher.Hash(password)
		return encoded, false, hashErr
	})
	if err != nil {
		return "", err
	}
	return res.encoded, res.err
}

// VerifyContext verifies password against hash on a pool worker. The KDF
// runs for verification too, so it is kept off the request path as well.
func (p *HashPool) VerifyContext(ctx context.Context, password, hash string) (bool, error) {
	res, err := p.submit(ctx, func() (string, bool, error) {
		ok, verifyErr := p.hasher.Verify(password, hash)
		return "", ok, verifyErr
	})
	if err != nil {
		return false, err
	}
	return res.ok, res.err
}

// Hash implements PasswordHasher without a caller-supplied context.
func (p *HashPool) Hash(password string) (string, error) {
	return p.HashContext(context.Background(), password)
}

// Verify implements PasswordHasher without a caller-supplied context.
func (p *HashPool) Verify(password, hash string) (bool, error) {
	return p.VerifyContext(context.Background(), password, hash)
}

// Close stops accepting work and waits for in-flight jobs to finish.
func (p *HashPool) Close() {
	p.closeOnce.Do(func() {
		close(p.jobs)
	})
	p.wg.Wait()
}

var _ PasswordHasher = (*HashPool)(nil)
