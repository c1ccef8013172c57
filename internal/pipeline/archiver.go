package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/predexchange/internal/domain"
)

// ArchiveJob copies event-log records older than the retention window to
// cold storage on a cron schedule.
type ArchiveJob struct {
	archiver      domain.Archiver
	retentionDays int
	now           func() time.Time
	logger        *slog.Logger
}

// NewArchiveJob creates an ArchiveJob.
func NewArchiveJob(archiver domain.Archiver, retentionDays int, logger *slog.Logger) *ArchiveJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArchiveJob{
		archiver:      archiver,
		retentionDays: retentionDays,
		now:           func() time.Time { return time.Now().UTC() },
		logger:        logger.With(slog.String("component", "archiver")),
	}
}

// Run archives everything ingested before now minus the retention window.
func (a *ArchiveJob) Run(ctx context.Context) (int64, error) {
	cutoff := a.now().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
	n, err := a.archiver.ArchiveBefore(ctx, cutoff)
	if err != nil {
		return n, fmt.Errorf("pipeline: archive before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	a.logger.Info("archive run complete",
		slog.Time("cutoff", cutoff),
		slog.Int64("records", n),
	)
	return n, nil
}

// RunCron runs the job at every time matching the 5-field cron expression
// (UTC) until ctx is cancelled.
func (a *ArchiveJob) RunCron(ctx context.Context, cronExpr string) error {
	sched, err := parseCron(cronExpr)
	if err != nil {
		return fmt.Errorf("pipeline: cron %q: %w", cronExpr, err)
	}

	for {
		next, err := sched.next(a.now())
		if err != nil {
			return fmt.Errorf("pipeline: cron %q: %w", cronExpr, err)
		}
		wait := time.Until(next)
		a.logger.Debug("archiver waiting", slog.Time("next_run", next), slog.Duration("wait", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			if _, err := a.Run(ctx); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// cronField is the set of values a field accepts; nil means any.
type cronField map[int]bool

func (f cronField) matches(v int) bool { return f == nil || f[v] }

// parseCronField accepts "*", "*/n", "a", "a-b", "a-b/n" and comma lists of
// those, within [lo, hi].
func parseCronField(field string, lo, hi int) (cronField, error) {
	if field == "*" {
		return nil, nil
	}
	out := cronField{}
	for _, part := range strings.Split(field, ",") {
		rng, step := part, 1
		if i := strings.IndexByte(part, '/'); i >= 0 {
			s, err := strconv.Atoi(part[i+1:])
			if err != nil || s < 1 {
				return nil, fmt.Errorf("invalid step in %q", part)
			}
			rng, step = part[:i], s
		}

		from, to := lo, hi
		switch {
		case rng == "*":
		case strings.Contains(rng, "-"):
			a, b, _ := strings.Cut(rng, "-")
			var errA, errB error
			from, errA = strconv.Atoi(a)
			to, errB = strconv.Atoi(b)
			if errA != nil || errB != nil {
				return nil, fmt.Errorf("invalid range %q", rng)
			}
		default:
			v, err := strconv.Atoi(rng)
			if err != nil {
				return nil, fmt.Errorf("invalid value %q", rng)
			}
			from, to = v, v
		}
		if from < lo || to > hi || from > to {
			return nil, fmt.Errorf("%q out of range %d-%d", part, lo, hi)
		}
		for v := from; v <= to; v += step {
			out[v] = true
		}
	}
	return out, nil
}

type cronSchedule struct {
	minute, hour, dom, month, dow cronField
}

func parseCron(expr string) (cronSchedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return cronSchedule{}, fmt.Errorf("expected 5 fields, got %d", len(fields))
	}
	bounds := [5][2]int{{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 6}}
	names := [5]string{"minute", "hour", "day-of-month", "month", "day-of-week"}
	var parsed [5]cronField
	for i, f := range fields {
		p, err := parseCronField(f, bounds[i][0], bounds[i][1])
		if err != nil {
			return cronSchedule{}, fmt.Errorf("%s field: %w", names[i], err)
		}
		parsed[i] = p
	}
	return cronSchedule{parsed[0], parsed[1], parsed[2], parsed[3], parsed[4]}, nil
}

func (c cronSchedule) matches(t time.Time) bool {
	return c.minute.matches(t.Minute()) &&
		c.hour.matches(t.Hour()) &&
		c.dom.matches(t.Day()) &&
		c.month.matches(int(t.Month())) &&
		c.dow.matches(int(t.Weekday()))
}

// next returns the first matching minute strictly after t, searching at most
// one year ahead.
func (c cronSchedule) next(t time.Time) (time.Time, error) {
	candidate := t.Truncate(time.Minute).Add(time.Minute)
	limit := t.Add(366 * 24 * time.Hour)
	for candidate.Before(limit) {
		if c.matches(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}
	return time.Time{}, fmt.Errorf("no matching time within a year")
}
