package di

import (
	"fmt"

	"github.com/aristath/valuator/internal/clientdata"
	"github.com/aristath/valuator/internal/config"
	"github.com/aristath/valuator/internal/scheduler"
	"github.com/rs/zerolog"
)

// JobInstances holds the maintenance jobs so they can be run on demand
type JobInstances struct {
	ClientDataCleanup *clientdata.CleanupJob
	WALCheckpoint     *scheduler.WALCheckpointJob
}

// RegisterJobs creates the scheduler and adds the maintenance jobs. The
// scheduler is not started.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	container.Scheduler = scheduler.New(log)

	jobs := &JobInstances{
		ClientDataCleanup: clientdata.NewCleanupJob(container.ClientDataRepo, log),
		WALCheckpoint:     scheduler.NewWALCheckpointJob(log, container.Databases()...),
	}

	if err := container.Scheduler.AddJob(cfg.ClientDataCleanupSchedule, jobs.ClientDataCleanup); err != nil {
		return nil, fmt.Errorf("failed to schedule client data cleanup: %w", err)
	}
	if err := container.Scheduler.AddJob(cfg.WALCheckpointSchedule, jobs.WALCheckpoint); err != nil {
		return nil, fmt.Errorf("failed to schedule WAL checkpoint: %w", err)
	}

	log.Info().Msg("Maintenance jobs registered")
	return jobs, nil
}
