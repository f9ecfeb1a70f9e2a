package processedlog

import (
	"context"

	"github.com/soundwatch/soundwatch/internal/model"
)

// relationalBackend is the minimal surface RelationalLog needs from
// internal/store, kept as an interface here so this package does not import
// the pgx-specific store package directly (mirroring the corpus's small
// interface-seam style rather than a generated mock).
type relationalBackend interface {
	IsProcessed(ctx context.Context, path string) (bool, error)
	Mark(ctx context.Context, rec model.ProcessedRecord) error
	Count(ctx context.Context) (int, error)
}

// RelationalLog adapts a relationalBackend (internal/store.Store) to Log.
type RelationalLog struct {
	backend relationalBackend
}

func NewRelationalLog(backend relationalBackend) *RelationalLog {
	return &RelationalLog{backend: backend}
}

func (r *RelationalLog) IsProcessed(path string) (bool, error) {
	return r.backend.IsProcessed(context.Background(), path)
}

func (r *RelationalLog) Mark(rec model.ProcessedRecord) error {
	return r.backend.Mark(context.Background(), rec)
}

func (r *RelationalLog) Count() (int, error) {
	return r.backend.Count(context.Background())
}
