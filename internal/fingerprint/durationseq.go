package fingerprint

import (
	"context"
	"log/slog"
)

// ExtractDurationSequence returns the per-file integer-second durations for
// paths in the supplied order, using only the local fpcalc invocation (no
// network). A file that fails extraction contributes 0 rather than aborting
// the whole sequence, since duration matching tolerates noisy samples.
func ExtractDurationSequence(ctx context.Context, paths []string) []int {
	out := make([]int, len(paths))
	for i, p := range paths {
		d, _, err := Extract(ctx, p)
		if err != nil {
			slog.Warn("duration extraction failed", "path", p, "error", err)
			continue
		}
		out[i] = d
	}
	return out
}
