package scheduler

import (
	"context"
	"fmt"

	leaderboardDto "pharos.xyz/statschecker/internal/modules/leaderboard/dto"
	"pharos.xyz/statschecker/pkg/logger"
)

const (
	LeaderboardRefreshJobName = "leaderboard_refresh"
	RankIndexWarmupJobName    = "rank_index_warmup"
)

// Refresher is the part of the leaderboard service the jobs drive.
type Refresher interface {
	InvalidateAndRefresh(ctx context.Context) (*leaderboardDto.RefreshResult, error)
	EnsureRankIndex(ctx context.Context) error
}

// LeaderboardRefreshJob rebuilds the daily snapshot and the rank index.
type LeaderboardRefreshJob struct {
	refresher Refresher
	schedule  string
}

func NewLeaderboardRefreshJob(refresher Refresher, schedule string) *LeaderboardRefreshJob {
	return &LeaderboardRefreshJob{refresher: refresher, schedule: schedule}
}

func (j *LeaderboardRefreshJob) GetName() string     { return LeaderboardRefreshJobName }
func (j *LeaderboardRefreshJob) GetSchedule() string { return j.schedule }

func (j *LeaderboardRefreshJob) Execute(ctx context.Context) error {
	res, err := j.refresher.InvalidateAndRefresh(ctx)
	if err != nil {
		return fmt.Errorf("leaderboard refresh: %w", err)
	}
	logger.Infof("[%s] %d users, %d checks, %d rank index entries",
		j.GetName(), res.TotalUsers, res.TotalChecks, res.RankIndexEntries)
	return nil
}

// RankIndexWarmupJob makes the rank index usable after boot, loading the stored
// copy when it is still valid.
type RankIndexWarmupJob struct {
	refresher Refresher
}

func NewRankIndexWarmupJob(refresher Refresher) *RankIndexWarmupJob {
	return &RankIndexWarmupJob{refresher: refresher}
}

func (j *RankIndexWarmupJob) GetName() string     { return RankIndexWarmupJobName }
func (j *RankIndexWarmupJob) GetSchedule() string { return "" }

func (j *RankIndexWarmupJob) Execute(ctx context.Context) error {
	return j.refresher.EnsureRankIndex(ctx)
}
