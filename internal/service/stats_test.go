package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cashgame-ledger-bot/internal/model"
	"cashgame-ledger-bot/internal/parser"
	"cashgame-ledger-bot/internal/repository"
)

func TestParseFilter(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected Filter
		wantErr  bool
	}{
		{name: "empty means trailing year", raw: "", expected: Filter{}},
		{name: "whitespace only", raw: "   ", expected: Filter{}},
		{name: "all", raw: "all", expected: Filter{All: true}},
		{name: "all is case-insensitive", raw: "ALL", expected: Filter{All: true}},
		{name: "four-digit year", raw: "2024", expected: Filter{Year: 2024}},
		{name: "word rejected", raw: "everything", wantErr: true},
		{name: "short year rejected", raw: "202", wantErr: true},
		{name: "long year rejected", raw: "20244", wantErr: true},
		{name: "mixed rejected", raw: "2024x", wantErr: true},
		{name: "negative rejected", raw: "-2024", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseFilter(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidFilter)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, f)
		})
	}
}

func TestStatsService_FilterWindows(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ledger, _, _ := newLedger(pool)
	stats := NewStatsService(repository.NewStatsRepository(pool))
	// Fixed evaluation instant so the trailing-365-day window is deterministic
	stats.now = func() time.Time { return day(2024, time.June, 1) }
	ctx := context.Background()

	// One game well inside the trailing year, one in the year before,
	// one far in the past.
	_, err := ledger.SubmitMessage(ctx, -1, 1, ptr(day(2024, time.March, 1)),
		[]string{"Вход:", "+100 | Recent"})
	require.NoError(t, err)
	_, err = ledger.SubmitMessage(ctx, -1, 2, ptr(day(2023, time.March, 1)),
		[]string{"Вход:", "+100 | LastYear"})
	require.NoError(t, err)
	_, err = ledger.SubmitMessage(ctx, -1, 3, ptr(day(2020, time.March, 1)),
		[]string{"Вход:", "+100 | Ancient"})
	require.NoError(t, err)

	names := func(rows []*model.UserStat) []string {
		out := make([]string, len(rows))
		for i, r := range rows {
			out[i] = r.Username
		}
		return out
	}

	// Default window: trailing 365 days from the evaluation instant
	rows, err := stats.QueryStats(ctx, Filter{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Recent"}, names(rows))

	// Calendar year window
	rows, err = stats.QueryStats(ctx, Filter{Year: 2023})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"LastYear"}, names(rows))

	// Unrestricted window
	rows, err = stats.QueryStats(ctx, Filter{All: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Recent", "LastYear", "Ancient"}, names(rows))
}

func TestStatsService_ScoreConvention(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ledger, _, _ := newLedger(pool)
	stats := NewStatsService(repository.NewStatsRepository(pool))
	ctx := context.Background()

	_, err := ledger.SubmitMessage(ctx, -1, 1, ptr(day(2024, time.March, 5)), fixtureLines)
	require.NoError(t, err)

	scores, err := stats.QueryScores(ctx, Filter{All: true})
	require.NoError(t, err)
	require.Len(t, scores, 3)

	byName := make(map[string]int64)
	for _, s := range scores {
		byName[s.Username] = s.Score
	}
	assert.Equal(t, int64(-500), byName["Тема"])
	assert.Equal(t, int64(-700), byName["User2"])
	assert.Equal(t, int64(1840), byName["User3"])

	// Ranked descending
	assert.Equal(t, "User3", scores[0].Username)
}

func TestStatsService_RecomputeMatchesLiveAll(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ledger, _, _ := newLedger(pool)
	stats := NewStatsService(repository.NewStatsRepository(pool))
	ctx := context.Background()

	_, err := ledger.SubmitMessage(ctx, -1, 1, ptr(day(2024, time.March, 5)), fixtureLines)
	require.NoError(t, err)
	_, err = ledger.ImportGame(ctx, -1, nil, []parser.Entry{
		{Username: "Тема", Amount: 250, Direction: model.DirectionOut},
	})
	require.NoError(t, err)

	require.NoError(t, stats.RecomputeAll(ctx))

	snapshot, err := stats.Snapshot(ctx)
	require.NoError(t, err)

	live, err := stats.QueryStats(ctx, Filter{All: true})
	require.NoError(t, err)

	// The two aggregation paths agree on rows and ordering
	assert.Equal(t, live, snapshot)
}
