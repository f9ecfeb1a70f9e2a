package albumcache

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/soundwatch/soundwatch/internal/duration"
	"github.com/soundwatch/soundwatch/internal/folderlock"
	"github.com/soundwatch/soundwatch/internal/model"
)

// RedisCache replicates FolderAlbumDecision across process instances that
// share a watch root over a network volume, via Redis's WATCH/MULTI
// transaction, so the strict source-priority rule (§4.8) holds even when two
// instances race on the same folder. This is an optional deployment:
// single-instance operation never needs it (see Cache). It exposes the exact
// method set of Cache so either can be handed to AlbumBatchProcessor or the
// file processor interchangeably; network failures are logged and treated as
// "no decision" rather than surfaced, matching how Cache's own callers never
// see an error from a map lookup.
type RedisCache struct {
	client *redis.Client
	locks  *folderlock.Registry
	prefix string
	source DurationSource
}

func NewRedisCache(client *redis.Client, locks *folderlock.Registry, keyPrefix string, source DurationSource) *RedisCache {
	if keyPrefix == "" {
		keyPrefix = "soundwatch:folder-decision:"
	}
	return &RedisCache{client: client, locks: locks, prefix: keyPrefix, source: source}
}

func (r *RedisCache) key(folderPath string) string {
	return r.prefix + folderPath
}

// Get returns the decision stored for folderPath, if any.
func (r *RedisCache) Get(folderPath string) (model.FolderAlbumDecision, bool) {
	ctx := context.Background()
	d, ok, err := r.get(ctx, r.client, folderPath)
	if err != nil {
		slog.Warn("redis get", "folder", folderPath, "err", err)
		return model.FolderAlbumDecision{}, false
	}
	return d, ok
}

// TryLock installs incoming iff no decision exists or the existing one is
// strictly lower priority, using an optimistic WATCH/MULTI transaction so
// concurrent writers from different processes cannot both win.
func (r *RedisCache) TryLock(folderPath string, incoming model.FolderAlbumDecision) (model.FolderAlbumDecision, bool) {
	ctx := context.Background()
	key := r.key(folderPath)
	var installed model.FolderAlbumDecision
	var ok bool

	txf := func(tx *redis.Tx) error {
		existing, found, err := r.get(ctx, tx, folderPath)
		if err != nil {
			return err
		}
		if found && !incoming.Source.Outranks(existing.Source) {
			installed, ok = existing, false
			return nil
		}
		data, err := json.Marshal(incoming)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, data, 0)
			return nil
		})
		if err != nil {
			return err
		}
		installed, ok = incoming, true
		return nil
	}

	if err := r.client.Watch(ctx, txf, key); err != nil {
		slog.Warn("redis tx", "folder", folderPath, "err", err)
		return model.FolderAlbumDecision{}, false
	}
	return installed, ok
}

type redisGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *RedisCache) get(ctx context.Context, g redisGetter, folderPath string) (model.FolderAlbumDecision, bool, error) {
	raw, err := g.Get(ctx, r.key(folderPath)).Bytes()
	if err == redis.Nil {
		return model.FolderAlbumDecision{}, false, nil
	}
	if err != nil {
		return model.FolderAlbumDecision{}, false, err
	}
	var d model.FolderAlbumDecision
	if err := json.Unmarshal(raw, &d); err != nil {
		return model.FolderAlbumDecision{}, false, err
	}
	return d, true, nil
}

// DetermineByDurationSequence mirrors Cache.DetermineByDurationSequence,
// ignoring expectedTrackCount like Cache does: the short-circuit is purely on
// similarity threshold, the track count having already gated which candidates
// were ever queued.
func (r *RedisCache) DetermineByDurationSequence(ctx context.Context, folderPath string, candidates []model.Candidate, observed []int, expectedTrackCount int) (model.FolderAlbumDecision, bool) {
	for _, cand := range candidates {
		info, err := r.source.GetReleaseDurationSequence(ctx, cand.ReleaseGroupID)
		if err != nil || len(info.Durations) == 0 {
			continue
		}
		sim := duration.Similarity(observed, info.Durations)
		if sim < duration.HighConfidence {
			continue
		}
		return model.FolderAlbumDecision{
			ReleaseGroupID: cand.ReleaseGroupID,
			ReleaseID:      info.ReleaseID,
			AlbumTitle:     cand.ReleaseTitle,
			TrackCount:     info.TrackCount,
			ReleaseDate:    info.ReleaseDate,
			Similarity:     sim,
			Source:         model.SourceDurationMatch,
		}, true
	}
	return model.FolderAlbumDecision{}, false
}

// Lock acquires folderPath's per-folder mutex, the same registry the
// in-process Cache uses, since folder serialization is a local-process
// concern regardless of where the decision itself is stored.
func (r *RedisCache) Lock(folderPath string) func() {
	return r.locks.Lock(folderPath)
}
