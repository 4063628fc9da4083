package clientdata

import (
	"github.com/aristath/valuator/internal/scheduler"
	"github.com/rs/zerolog"
)

var _ scheduler.Job = (*CleanupJob)(nil)

// CleanupJob prunes cache entries that are past their stale retention.
type CleanupJob struct {
	repo *Repository
	log  zerolog.Logger
}

// NewCleanupJob creates the client data cleanup job.
func NewCleanupJob(repo *Repository, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		repo: repo,
		log:  log.With().Str("job", "client_data_cleanup").Logger(),
	}
}

// Run prunes every table. Tables cleaned before a failure are still logged.
func (j *CleanupJob) Run() error {
	results, err := j.repo.DeleteAllExpired()

	var total int64
	perTable := zerolog.Dict()
	for table, count := range results {
		perTable.Int64(table, count)
		total += count
	}
	if err != nil {
		j.log.Error().Err(err).Dict("deleted", perTable).Msg("Client data cleanup failed")
		return err
	}

	if total > 0 {
		j.log.Info().Int64("total_deleted", total).Dict("deleted", perTable).Msg("Pruned stale client data")
	} else {
		j.log.Debug().Msg("No stale client data to prune")
	}
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *CleanupJob) Name() string {
	return "client_data_cleanup"
}
