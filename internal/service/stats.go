package service

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"cashgame-ledger-bot/internal/model"
	"cashgame-ledger-bot/internal/repository"
)

// ErrInvalidFilter is returned for filter values outside the accepted
// domain (empty, "all", or a 4-digit year). Callers validate before the
// aggregate queries ever run.
var ErrInvalidFilter = errors.New("invalid stats filter")

// yearPattern matches a 4-digit calendar year filter.
var yearPattern = regexp.MustCompile(`^\d{4}$`)

// Filter selects the date window for a stats query. The zero value is the
// default window: games dated within the trailing 365 days.
type Filter struct {
	All  bool
	Year int
}

// ParseFilter validates a raw filter argument. Empty means the default
// trailing-year window, "all" lifts the restriction, a 4-digit year
// restricts to that calendar year. Anything else is ErrInvalidFilter.
func ParseFilter(raw string) (Filter, error) {
	arg := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case arg == "":
		return Filter{}, nil
	case arg == "all":
		return Filter{All: true}, nil
	case yearPattern.MatchString(arg):
		year, err := strconv.Atoi(arg)
		if err != nil {
			return Filter{}, ErrInvalidFilter
		}
		return Filter{Year: year}, nil
	default:
		return Filter{}, ErrInvalidFilter
	}
}

// StatsService answers leaderboard queries and owns the denormalized
// all-time snapshot.
type StatsService struct {
	stats *repository.StatsRepository
	now   func() time.Time
}

// NewStatsService creates a new StatsService instance.
func NewStatsService(stats *repository.StatsRepository) *StatsService {
	return &StatsService{
		stats: stats,
		now:   time.Now,
	}
}

// window maps a filter onto a repository date window.
func (s *StatsService) window(f Filter) repository.DateWindow {
	switch {
	case f.All:
		return repository.All()
	case f.Year != 0:
		return repository.Year(f.Year)
	default:
		return repository.Since(s.now().AddDate(0, 0, -365))
	}
}

// QueryStats returns per-participant totals and game counts for the
// filter's window, ranked by net score descending with username ascending
// as the tie-break.
func (s *StatsService) QueryStats(ctx context.Context, f Filter) ([]*model.UserStat, error) {
	return s.stats.FilteredStats(ctx, s.window(f))
}

// QueryScores returns the reduced leaderboard rows for the filter's
// window, same ranking as QueryStats.
func (s *StatsService) QueryScores(ctx context.Context, f Filter) ([]*model.UserScore, error) {
	return s.stats.FilteredScores(ctx, s.window(f))
}

// RecomputeAll rebuilds the all-time snapshot from the full transaction
// history.
func (s *StatsService) RecomputeAll(ctx context.Context) error {
	return s.stats.Recompute(ctx)
}

// Snapshot reads the all-time aggregate produced by the last recompute.
func (s *StatsService) Snapshot(ctx context.Context) ([]*model.UserStat, error) {
	return s.stats.Snapshot(ctx)
}
