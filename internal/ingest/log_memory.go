package ingest

import (
	"context"
	"sync"
)

type logKey struct {
	tenantID string
	source   SourceType
	hash     string
}

// MemoryLogRepo is an in-memory LogRepo.
type MemoryLogRepo struct {
	mu   sync.Mutex
	logs map[string]Log
	keys map[logKey]string
}

// NewMemoryLogRepo constructs a MemoryLogRepo.
func NewMemoryLogRepo() *MemoryLogRepo {
	return &MemoryLogRepo{logs: make(map[string]Log), keys: make(map[logKey]string)}
}

func (r *MemoryLogRepo) Claim(ctx context.Context, log Log) (Log, bool, error) {
	if err := ctx.Err(); err != nil {
		return Log{}, false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := logKey{tenantID: log.TenantID, source: log.SourceType, hash: log.PayloadHash}
	if id, ok := r.keys[key]; ok {
		return r.logs[id], false, nil
	}
	log.Metadata = copyMap(log.Metadata)
	r.logs[log.ID] = log
	r.keys[key] = log.ID
	return log, true, nil
}

func (r *MemoryLogRepo) Complete(ctx context.Context, tenantID, id string, metadata map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	log, ok := r.logs[id]
	if !ok || log.TenantID != tenantID {
		return ErrLogNotFound
	}
	merged := copyMap(log.Metadata)
	for k, v := range metadata {
		merged[k] = v
	}
	log.Metadata = merged
	log.Completed = true
	r.logs[id] = log
	return nil
}

func (r *MemoryLogRepo) Release(ctx context.Context, tenantID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	log, ok := r.logs[id]
	if !ok || log.TenantID != tenantID || log.Completed {
		return nil
	}
	delete(r.logs, id)
	delete(r.keys, logKey{tenantID: log.TenantID, source: log.SourceType, hash: log.PayloadHash})
	return nil
}

func (r *MemoryLogRepo) GetByID(ctx context.Context, tenantID, id string) (Log, error) {
	if err := ctx.Err(); err != nil {
		return Log{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	log, ok := r.logs[id]
	if !ok || log.TenantID != tenantID {
		return Log{}, ErrLogNotFound
	}
	log.Metadata = copyMap(log.Metadata)
	return log, nil
}

// Len returns the number of stored logs.
func (r *MemoryLogRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.logs)
}

func copyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

var _ LogRepo = (*MemoryLogRepo)(nil)
