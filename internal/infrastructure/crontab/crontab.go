package crontab

import (
	"context"
	"errors"
	"time"

	"github.com/mileusna/crontab"
	"github.com/rs/zerolog"

	"github.com/malan-ai/malan-server/internal/domain/conversation"
	"github.com/malan-ai/malan-server/internal/infrastructure/metrics"
	"github.com/malan-ai/malan-server/internal/utils/platformerrors"
)

// CronJobTimeout bounds each maintenance run.
const CronJobTimeout = 5 * time.Minute

// lockWait bounds how long the idle sweep waits for a busy conversation.
const lockWait = 2 * time.Second

// ReplyPurger removes stored reply files older than a cutoff.
type ReplyPurger interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// Settings select which maintenance jobs run. A zero duration disables the
// matching job.
type Settings struct {
	Schedule       string
	HistoryIdleTTL time.Duration
	ReplyRetention time.Duration
}

// Crontab runs periodic maintenance: idle conversation purge and expired
// reply file purge.
type Crontab struct {
	ctab     *crontab.Crontab
	history  conversation.Repository
	locker   conversation.Locker
	replies  ReplyPurger
	settings Settings
	now      func() time.Time
	lockWait time.Duration
	log      zerolog.Logger
}

// NewCrontab purges idle conversations under the same locker the chat
// service uses, so a conversation with a turn in flight is never removed.
func NewCrontab(history conversation.Repository, locker conversation.Locker, replies ReplyPurger, settings Settings, log zerolog.Logger) *Crontab {
	if settings.Schedule == "" {
		settings.Schedule = "*/5 * * * *"
	}
	return &Crontab{
		ctab:     crontab.New(),
		history:  history,
		locker:   locker,
		replies:  replies,
		settings: settings,
		now:      time.Now,
		lockWait: lockWait,
		log:      log.With().Str("component", "crontab").Logger(),
	}
}

// Enabled reports whether any job is configured.
func (c *Crontab) Enabled() bool {
	return c.settings.HistoryIdleTTL > 0 || (c.settings.ReplyRetention > 0 && c.replies != nil)
}

// Run schedules the jobs and blocks until ctx is done.
func (c *Crontab) Run(ctx context.Context) error {
	if !c.Enabled() {
		c.log.Info().Msg("no maintenance jobs configured")
		<-ctx.Done()
		return nil
	}

	if err := c.ctab.AddJob(c.settings.Schedule, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), CronJobTimeout)
		defer cancel()
		c.RunOnce(jobCtx)
	}); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "failed to add maintenance job")
	}
	c.log.Info().
		Str("schedule", c.settings.Schedule).
		Dur("history_idle_ttl", c.settings.HistoryIdleTTL).
		Dur("reply_retention", c.settings.ReplyRetention).
		Msg("maintenance scheduled")

	<-ctx.Done()
	c.ctab.Shutdown()
	return nil
}

// RunOnce performs one maintenance pass.
func (c *Crontab) RunOnce(ctx context.Context) {
	now := c.now()

	if c.settings.HistoryIdleTTL > 0 && c.history != nil {
		purged, err := c.purgeIdle(ctx, now.Add(-c.settings.HistoryIdleTTL))
		if err != nil {
			c.log.Error().Err(err).Msg("failed to purge idle conversations")
		} else if purged > 0 {
			metrics.RecordPurge(purged)
			c.log.Info().Int("count", purged).Msg("purged idle conversations")
		}
	}

	if c.settings.ReplyRetention > 0 && c.replies != nil {
		purged, err := c.replies.PurgeOlderThan(ctx, now.Add(-c.settings.ReplyRetention))
		if err != nil {
			c.log.Error().Err(err).Msg("failed to purge reply files")
		} else if purged > 0 {
			c.log.Info().Int("count", purged).Msg("purged expired reply files")
		}
	}
}

func (c *Crontab) purgeIdle(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := c.history.IdleIDs(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	purged := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return purged, ctx.Err()
		}
		ok, err := c.purgeOne(ctx, id, cutoff)
		if err != nil {
			c.log.Error().Err(err).Str("conversation_id", id).Msg("failed to purge conversation")
			continue
		}
		if ok {
			purged++
		}
	}
	return purged, nil
}

// purgeOne deletes id if it is still idle once its lock is held. Busy
// conversations are skipped until the next run.
func (c *Crontab) purgeOne(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	if c.locker != nil {
		lockCtx, cancel := context.WithTimeout(ctx, c.lockWait)
		unlock, err := c.locker.Lock(lockCtx, id)
		cancel()
		if err != nil {
			c.log.Debug().Err(err).Str("conversation_id", id).Msg("conversation busy, skipping purge")
			return false, nil
		}
		defer unlock()
	}

	conv, err := c.history.Get(ctx, id)
	switch {
	case errors.Is(err, conversation.ErrNotFound):
		// Expired on its own. Delete drops any index entry left behind.
		return false, c.history.Delete(ctx, id)
	case err != nil:
		return false, err
	case !conv.UpdatedAt.Before(cutoff):
		return false, nil
	}
	if err := c.history.Delete(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}
