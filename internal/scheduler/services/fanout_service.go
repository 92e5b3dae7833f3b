package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"go-batchd/pkg/database"
)

// maxFiringsPerTick bounds backfill width: a schedule can contribute at most
// this many firings per scan, the rest roll over to the next tick.
const maxFiringsPerTick = 5000

// FireService scans enabled schedules and inserts one PENDING task per cron
// firing instant in the scan window. The ticket uniqueness constraint makes
// the insert idempotent, so overlapping windows and restarts collapse to
// no-ops instead of duplicate tasks.
type FireService struct {
	db     *database.SQL
	repo   *Repository
	parser cron.Parser
	window time.Duration
}

// NewFireService creates a new fan-out service instance
func NewFireService(db *database.SQL, repo *Repository) *FireService {
	return &FireService{
		db:   db,
		repo: repo,
		// Six-field expressions with seconds, e.g. "*/5 * * * * *".
		parser: cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		window: time.Hour,
	}
}

// FireDue performs one fan-out scan in a single transaction. Schedules with
// unparsable cron expressions are skipped with a warning; they stay enabled
// so fixing the expression resumes them without further action.
func (s *FireService) FireDue(ctx context.Context) error {
	now := time.Now().Truncate(time.Second)

	tx, err := s.db.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	schedules, err := s.repo.ListEnabledSchedulesTx(ctx, tx)
	if err != nil {
		return err
	}

	for _, sched := range schedules {
		if strings.TrimSpace(sched.Cron) == "" {
			continue
		}
		expr, err := s.parser.Parse(sched.Cron)
		if err != nil {
			slog.Warn("Invalid cron expression",
				slog.Int64("schedule_id", sched.ID),
				slog.String("cron", sched.Cron))
			continue
		}

		start := now.Add(-s.window)
		if sched.LastFireAt != nil {
			start = *sched.LastFireAt
		}

		for _, t := range firingsBetween(expr, start, now) {
			ticket := ticketFor(sched.ID, t)
			inserted, err := s.repo.InsertTaskIfAbsentTx(ctx, tx, ticket, sched.Type, sched.Payload, 0, t, sched.ID)
			if err != nil {
				return err
			}
			if inserted > 0 {
				slog.Info("Fired schedule",
					slog.Int64("schedule_id", sched.ID),
					slog.String("cron", sched.Cron),
					slog.Time("at", t))
				if err := s.repo.AdvanceLastFireTx(ctx, tx, sched.ID, t); err != nil {
					return err
				}
			}
		}
	}

	return tx.Commit()
}

// firingsBetween enumerates activation instants strictly after start-1s and
// not after end, capped at maxFiringsPerTick. The -1s shift lets an instant
// exactly at the watermark re-fire; the ticket constraint collapses it.
func firingsBetween(expr cron.Schedule, start, end time.Time) []time.Time {
	var out []time.Time
	next := expr.Next(start.Add(-time.Second))
	for !next.IsZero() && !next.After(end) {
		out = append(out, next)
		if len(out) >= maxFiringsPerTick {
			break
		}
		next = expr.Next(next)
	}
	return out
}

// ticketFor derives the deduplication key for a (schedule, firing) pair.
func ticketFor(scheduleID int64, t time.Time) string {
	return fmt.Sprintf("schedule#%d#%s", scheduleID, t.Format("20060102150405"))
}
