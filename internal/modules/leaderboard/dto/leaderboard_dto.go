package dto

import "time"

// LeaderboardEntry is one ranked wallet in the snapshot or live top list.
// Rank is tie-aware: equal scores share the lower rank.
type LeaderboardEntry struct {
	Rank          int64      `json:"rank"`
	Address       string     `json:"address"`
	TotalPoints   int64      `json:"total_points"`
	CurrentLevel  int        `json:"current_level"`
	SendCount     int        `json:"send_count"`
	SwapCount     int        `json:"swap_count"`
	LPCount       int        `json:"lp_count"`
	SocialTasks   int        `json:"social_tasks"`
	MintDomain    int        `json:"mint_domain"`
	MintNFT       int        `json:"mint_nft"`
	FaroswapLP    int        `json:"faroswap_lp"`
	FaroswapSwaps int        `json:"faroswap_swaps"`
	MemberSince   *string    `json:"member_since"`
	FirstCheck    *time.Time `json:"first_check"`
	LastCheck     *time.Time `json:"last_check"`
	TotalChecks   int64      `json:"total_checks"`
}

// Snapshot is the daily aggregate view. It is immutable once built; Cached and
// CacheInfo are annotations added on the way out.
type Snapshot struct {
	TotalUsers        int64              `json:"total_users"`
	TotalChecks       int64              `json:"total_checks"`
	Leaderboard       []LeaderboardEntry `json:"leaderboard"`
	PointDistribution map[string]int64   `json:"point_distribution"`
	LastUpdated       time.Time          `json:"last_updated"`

	Cached    bool   `json:"cached"`
	CacheInfo string `json:"cache_info"`
}

type StatsResponse struct {
	Success bool `json:"success"`
	*Snapshot
}

type RefreshResult struct {
	Success          bool      `json:"success"`
	Message          string    `json:"message"`
	JobID            string    `json:"job_id"`
	Timestamp        time.Time `json:"timestamp"`
	TotalUsers       int64     `json:"total_users"`
	TotalChecks      int64     `json:"total_checks"`
	RankIndexEntries int       `json:"rank_index_entries"`
}

type RankIndexStatus struct {
	Valid      bool       `json:"valid"`
	Entries    int        `json:"entries"`
	ValidUntil *time.Time `json:"valid_until"`
}

type TopRequest struct {
	Limit int `form:"limit"`
}
