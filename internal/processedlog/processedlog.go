// Package processedlog implements ProcessedLog (§4.7): a durable record of
// "this path has been handled", with a file-backed and a relational backend
// sharing one interface.
package processedlog

import "github.com/soundwatch/soundwatch/internal/model"

// Log is the ProcessedLog contract consumed by the rest of the pipeline.
type Log interface {
	IsProcessed(path string) (bool, error)
	Mark(rec model.ProcessedRecord) error
	Count() (int, error)
}
