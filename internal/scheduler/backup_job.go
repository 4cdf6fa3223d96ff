package scheduler

import (
	"github.com/rs/zerolog"

	"github.com/royaltyfi/vaultd/internal/reliability"
)

// BackupJob archives the databases and ledger snapshot on a schedule.
type BackupJob struct {
	backups *reliability.BackupService
	log     zerolog.Logger
}

// NewBackupJob creates a new backup job
func NewBackupJob(backups *reliability.BackupService, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		backups: backups,
		log:     log.With().Str("job", "backup").Logger(),
	}
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return "backup"
}

// Run creates one backup archive.
func (j *BackupJob) Run() error {
	_, err := j.backups.CreateBackup()
	return err
}
