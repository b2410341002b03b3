package dto

import "time"

// UserStatRecord is the canonical per-wallet record. The persistent store owns
// it; caches only ever hold copies (see Clone).
type UserStatRecord struct {
	Address      string `json:"address"` // lowercase 0x-prefixed hex
	TotalPoints  int64  `json:"total_points"`
	ExactRank    *int64 `json:"exact_rank"`
	CurrentLevel int    `json:"current_level"`
	NextLevel    int    `json:"next_level"`
	PointsNeeded int64  `json:"points_needed"`

	SendCount          int `json:"send_count"`
	SwapCount          int `json:"swap_count"`
	LPCount            int `json:"lp_count"`
	SocialTasksCount   int `json:"social_tasks"`
	MintDomainCount    int `json:"mint_domain"`
	MintNFTCount       int `json:"mint_nft"`
	FaroswapLPCount    int `json:"faroswap_lp"`
	FaroswapSwapsCount int `json:"faroswap_swaps"`

	MemberSince  *string    `json:"member_since"`
	FirstCheckAt *time.Time `json:"first_check,omitempty"`
	LastCheckAt  *time.Time `json:"last_check,omitempty"`
	TotalChecks  int64      `json:"total_checks"`
}

// Clone returns a deep copy so callers can't mutate cached state.
func (r *UserStatRecord) Clone() *UserStatRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.ExactRank != nil {
		v := *r.ExactRank
		c.ExactRank = &v
	}
	if r.MemberSince != nil {
		v := *r.MemberSince
		c.MemberSince = &v
	}
	if r.FirstCheckAt != nil {
		v := *r.FirstCheckAt
		c.FirstCheckAt = &v
	}
	if r.LastCheckAt != nil {
		v := *r.LastCheckAt
		c.LastCheckAt = &v
	}
	return &c
}
