package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"dipcp-go/internal/dip"
	"dipcp-go/internal/metrics"
)

// Defaults for watch intervals left unset in the config.
const (
	DefaultVoteFlushInterval = time.Hour
	DefaultNoticeInterval    = 5 * time.Minute
)

// voteCheckInterval bounds how late a due vote flush can be.
const voteCheckInterval = time.Minute

// Watch runs until ctx is cancelled. It flushes queued votes at most once
// per vote_flush_interval, checks for notices every notice_interval and,
// when metrics.listen is set, serves /metrics.
func (a *App) Watch(ctx context.Context) error {
	a.op.MarkMutated()

	voteEvery := a.cfg.Sync.VoteFlushInterval.Duration
	if voteEvery <= 0 {
		voteEvery = DefaultVoteFlushInterval
	}
	noticeEvery := a.cfg.Sync.NoticeInterval.Duration
	if noticeEvery <= 0 {
		noticeEvery = DefaultNoticeInterval
	}

	if addr := a.cfg.Metrics.Listen; addr != "" {
		server := &http.Server{
			Addr:         addr,
			Handler:      metrics.SetupMetricsRoute(a.registry),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			a.logger.Info("metrics server starting", "addr", addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("metrics server shutdown failed", "error", err)
			}
		}()
	}

	voteTicker := time.NewTicker(min(voteEvery, voteCheckInterval))
	defer voteTicker.Stop()
	noticeTicker := time.NewTicker(noticeEvery)
	defer noticeTicker.Stop()

	a.logger.Info("watch started", "vote_flush_interval", voteEvery, "notice_interval", noticeEvery)

	// Run once right away.
	a.flushVotesIfDue(ctx, voteEvery)
	a.checkNotices(ctx)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("watch stopped")
			return nil
		case <-voteTicker.C:
			a.flushVotesIfDue(ctx, voteEvery)
		case <-noticeTicker.C:
			a.checkNotices(ctx)
		}
	}
}

func (a *App) flushVotesIfDue(ctx context.Context, interval time.Duration) {
	if ctx.Err() != nil {
		return
	}
	flushed, err := a.sync.FlushVotesIfDue(ctx, interval)
	if err != nil {
		a.logger.Error("vote flush failed", "error", err)
		return
	}
	if flushed {
		a.logger.Debug("vote flush ran")
	}
}

// checkNotices logs how many notices are waiting. It returns the counts
// by kind.
func (a *App) checkNotices(ctx context.Context) map[dip.NoticeKind]int {
	if ctx.Err() != nil || a.session.User == "" {
		return nil
	}
	notices, err := a.Notices(ctx)
	if err != nil {
		a.logger.Warn("checking notices failed", "error", err)
		return nil
	}
	counts := make(map[dip.NoticeKind]int)
	for _, n := range notices {
		counts[n.Kind]++
	}
	if len(notices) > 0 {
		a.logger.Info("notices waiting",
			"link_requests", counts[dip.NoticeLinkRequest],
			"results", counts[dip.NoticeResult],
		)
	}
	return counts
}
