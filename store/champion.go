package store

import (
	"context"
	"encoding/json"
	"time"
)

// ChampionScore is the latest success score of a champion in a company.
type ChampionScore struct {
	ChampionID   string          `json:"championId"`
	CompanyID    string          `json:"companyId"`
	Score        int             `json:"score"`
	Breakdown    json.RawMessage `json:"breakdown"`
	CalculatedAt time.Time       `json:"calculatedAt"`
}

// UpsertChampionScore stores sc, replacing the previous score.
func (s *Store) UpsertChampionScore(ctx context.Context, sc ChampionScore) (ChampionScore, error) {
	sc.CalculatedAt = s.Now()
	if len(sc.Breakdown) == 0 {
		sc.Breakdown = json.RawMessage(`{}`)
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO champion_scores (champion_id, company_id, score, breakdown, calculated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (champion_id, company_id) DO UPDATE SET score = excluded.score, breakdown = excluded.breakdown, calculated_at = excluded.calculated_at`,
		sc.ChampionID, sc.CompanyID, sc.Score, string(sc.Breakdown), sc.CalculatedAt)
	return sc, mapErr(err)
}

// GetChampionScore loads the stored score, or ErrNotFound.
func (s *Store) GetChampionScore(ctx context.Context, companyID, championID string) (ChampionScore, error) {
	var sc ChampionScore
	var breakdown string
	err := s.db.QueryRowContext(ctx, `SELECT champion_id, company_id, score, breakdown, calculated_at FROM champion_scores WHERE company_id = ? AND champion_id = ?`,
		companyID, championID).Scan(&sc.ChampionID, &sc.CompanyID, &sc.Score, &breakdown, &sc.CalculatedAt)
	if err != nil {
		return ChampionScore{}, mapErr(err)
	}
	sc.Breakdown = json.RawMessage(breakdown)
	return sc, nil
}

// IncentiveClaim records a reward a champion has claimed.
type IncentiveClaim struct {
	ID         string    `json:"id"`
	ChampionID string    `json:"championId"`
	CompanyID  string    `json:"companyId"`
	RewardID   string    `json:"rewardId"`
	ClaimedAt  time.Time `json:"claimedAt"`
}

// InsertIncentiveClaim stores a claim; claiming the same reward twice
// returns ErrConflict.
func (s *Store) InsertIncentiveClaim(ctx context.Context, c IncentiveClaim) (IncentiveClaim, error) {
	c.ID, c.ClaimedAt = newID(), s.Now()
	_, err := s.db.ExecContext(ctx, `INSERT INTO incentive_claims (id, champion_id, company_id, reward_id, claimed_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.ChampionID, c.CompanyID, c.RewardID, c.ClaimedAt)
	return c, mapErr(err)
}

// ClaimedRewards returns the set of reward ids already claimed.
func (s *Store) ClaimedRewards(ctx context.Context, companyID, championID string) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT reward_id, claimed_at FROM incentive_claims WHERE company_id = ? AND champion_id = ?`, companyID, championID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]time.Time)
	for rows.Next() {
		var id string
		var at time.Time
		if err := rows.Scan(&id, &at); err != nil {
			return nil, err
		}
		out[id] = at
	}
	return out, rows.Err()
}
