package scheduler

import (
	"context"
	"time"

	"github.com/aristath/valuator/internal/database"
	"github.com/rs/zerolog"
)

const walCheckpointTimeout = time.Minute

// WALCheckpointJob truncates the write-ahead log of every open database
type WALCheckpointJob struct {
	databases []*database.DB
	log       zerolog.Logger
}

// NewWALCheckpointJob creates a new WAL checkpoint job. Nil databases are
// skipped.
func NewWALCheckpointJob(log zerolog.Logger, databases ...*database.DB) *WALCheckpointJob {
	return &WALCheckpointJob{
		databases: databases,
		log:       log.With().Str("job", "wal_checkpoint").Logger(),
	}
}

// Name returns the job name
func (j *WALCheckpointJob) Name() string {
	return "wal_checkpoint"
}

// Run checkpoints each database. A failing database is logged and the rest
// are still checkpointed; the first error is returned.
func (j *WALCheckpointJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), walCheckpointTimeout)
	defer cancel()

	var firstErr error
	checked := 0
	for _, db := range j.databases {
		if db == nil {
			continue
		}
		if err := db.WALCheckpoint(ctx, ""); err != nil {
			j.log.Warn().
				Err(err).
				Str("database", db.Name()).
				Msg("Failed to checkpoint WAL")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		checked++
	}

	j.log.Info().
		Int("checkpointed", checked).
		Msg("WAL checkpoint completed")

	return firstErr
}
