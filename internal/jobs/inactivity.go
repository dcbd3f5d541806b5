package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/botdesk/bridge-server-go/internal/repository"
)

// InactivityJob closes conversations with no activity past the configured
// window so the dashboard list stays focused on live threads.
type InactivityJob struct {
	convRepo   repository.ConversationRepository
	interval   time.Duration
	closeAfter time.Duration
	done       chan struct{}
}

func NewInactivityJob(convRepo repository.ConversationRepository, interval, closeAfter time.Duration) *InactivityJob {
	return &InactivityJob{
		convRepo:   convRepo,
		interval:   interval,
		closeAfter: closeAfter,
		done:       make(chan struct{}),
	}
}

func (j *InactivityJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Dur("closeAfter", j.closeAfter).Msg("inactivity job started")
}

func (j *InactivityJob) Stop() {
	close(j.done)
	log.Info().Msg("inactivity job stopped")
}

func (j *InactivityJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *InactivityJob) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-j.closeAfter)
	count, err := j.convRepo.CloseInactive(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("failed to close inactive conversations")
	} else if count > 0 {
		log.Info().Int64("count", count).Msg("closed inactive conversations")
	}
}
