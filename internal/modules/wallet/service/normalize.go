package service

import (
	"strings"

	leaderboardService "pharos.xyz/statschecker/internal/modules/leaderboard/service"
	"pharos.xyz/statschecker/internal/upstream"
	"pharos.xyz/statschecker/pkg/dto"
)

// Task IDs reported by the upstream task list.
const (
	taskSwap          = 101
	taskLP            = 102
	taskSend          = 103
	taskMintDomain    = 104
	taskMintNFT       = 105
	taskFaroswapLP    = 106
	taskFaroswapSwaps = 107
)

func isSocialTask(id int) bool {
	return id >= 201 && id <= 204
}

// Normalize builds the record for address from the raw upstream payload. Rank
// and check history are filled in later.
func Normalize(address string, payload *upstream.UserPayload) *dto.UserStatRecord {
	info := payload.Profile.UserInfo
	points := info.TotalPoints
	if points < 0 {
		points = 0
	}
	level := leaderboardService.GetLevelStatus(points)

	rec := &dto.UserStatRecord{
		Address:      strings.ToLower(address),
		TotalPoints:  points,
		CurrentLevel: level.CurrentLevel,
		NextLevel:    level.NextLevel,
		PointsNeeded: level.PointsNeeded,
	}
	if info.CreateTime != nil && *info.CreateTime != "" {
		since := string(*info.CreateTime)
		rec.MemberSince = &since
	}

	applyTasks(rec, payload.Tasks.UserTasks)
	return rec
}

// applyTasks sets per-task counters. A repeated task ID overwrites the earlier
// count; social tasks count once per entry.
func applyTasks(rec *dto.UserStatRecord, tasks []upstream.UserTask) {
	for _, t := range tasks {
		switch {
		case t.TaskID == taskSwap:
			rec.SwapCount = t.CompleteTimes
		case t.TaskID == taskLP:
			rec.LPCount = t.CompleteTimes
		case t.TaskID == taskSend:
			rec.SendCount = t.CompleteTimes
		case t.TaskID == taskMintDomain:
			rec.MintDomainCount = t.CompleteTimes
		case t.TaskID == taskMintNFT:
			rec.MintNFTCount = t.CompleteTimes
		case t.TaskID == taskFaroswapLP:
			rec.FaroswapLPCount = t.CompleteTimes
		case t.TaskID == taskFaroswapSwaps:
			rec.FaroswapSwapsCount = t.CompleteTimes
		case isSocialTask(t.TaskID):
			rec.SocialTasksCount++
		}
	}
}
