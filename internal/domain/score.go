package domain

import (
	"math"
	"sort"
	"time"
)

// Score awards points for a correct answer, halving linearly to 50% at the time limit.
func Score(correct bool, responseTime, limit time.Duration, points int) int {
	if !correct {
		return 0
	}
	if points <= 0 {
		points = 1
	}
	frac := 0.0
	if limit > 0 {
		frac = float64(responseTime) / float64(limit)
	}
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return int(math.Round(float64(points) * (500 + 500*(1-frac))))
}

// LeaderboardEntry is a snapshot-friendly view of a participant.
type LeaderboardEntry struct {
	ParticipantID string `json:"participantId"`
	Name          string `json:"name"`
	Score         int    `json:"score"`
	Correct       int    `json:"correct"`
}

// BuildLeaderboard scores every participant from their answers.
// Ties break on correct count, then earliest join, then name.
func BuildLeaderboard(participants []Participant, questions []Question, answers []Answer, limit time.Duration) []LeaderboardEntry {
	byQuestion := make(map[string]Question, len(questions))
	for _, q := range questions {
		byQuestion[q.ID] = q
	}
	joined := make(map[string]time.Time, len(participants))
	entries := make(map[string]*LeaderboardEntry, len(participants))
	for _, p := range participants {
		joined[p.ID] = p.CreatedAt
		entries[p.ID] = &LeaderboardEntry{ParticipantID: p.ID, Name: p.Name}
	}
	for _, a := range answers {
		e, ok := entries[a.ParticipantID]
		if !ok {
			continue
		}
		q, ok := byQuestion[a.QuestionID]
		if !ok {
			continue
		}
		opt, ok := q.FindOption(a.OptionID)
		if !ok || !opt.IsCorrect {
			continue
		}
		e.Correct++
		e.Score += Score(true, a.ResponseTime(), limit, q.PointsOrDefault())
	}

	out := make([]LeaderboardEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Correct != out[j].Correct {
			return out[i].Correct > out[j].Correct
		}
		ji, jj := joined[out[i].ParticipantID], joined[out[j].ParticipantID]
		if !ji.Equal(jj) {
			return ji.Before(jj)
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// ResponseTime is the recorded latency, or 0 when none was captured.
func (a Answer) ResponseTime() time.Duration {
	if a.ResponseTimeMs == nil {
		return 0
	}
	return time.Duration(*a.ResponseTimeMs) * time.Millisecond
}

// PersonalResult is a participant's end-of-game summary.
type PersonalResult struct {
	Correct    int    `json:"correct"`
	Total      int    `json:"total"`
	Percentage int    `json:"percentage"`
	Score      int    `json:"score"`
	Rank       int    `json:"rank"`
	Message    string `json:"message"`
}

// ResultMessage picks the encouragement line for a percentage.
func ResultMessage(pct int) string {
	switch {
	case pct >= 80:
		return "Amazing job!"
	case pct >= 60:
		return "Well done!"
	case pct >= 40:
		return "Good effort!"
	default:
		return "Thanks for playing!"
	}
}

// Percent returns round(part/total*100), or 0 when total is 0.
func Percent(part, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}
