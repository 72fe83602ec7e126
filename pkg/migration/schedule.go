package migration

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sbdlabs/clustercore/pkg/log"
	"github.com/sbdlabs/clustercore/pkg/storage"
	"github.com/sbdlabs/clustercore/pkg/types"
)

// ScheduleRunner periodically checks due ScheduledMigration entries and
// kicks off a direct transfer for each, sweeping on a fixed one-minute
// tick.
type ScheduleRunner struct {
	store    storage.Store
	transfer *TransferRunner
	mu       sync.Mutex
	stopCh   chan struct{}
}

// NewScheduleRunner builds a ScheduleRunner driving transfer off the
// given TransferRunner.
func NewScheduleRunner(store storage.Store, transfer *TransferRunner) *ScheduleRunner {
	return &ScheduleRunner{
		store:    store,
		transfer: transfer,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the schedule-checking loop.
func (s *ScheduleRunner) Start() {
	go s.run()
}

// Stop halts the loop.
func (s *ScheduleRunner) Stop() {
	close(s.stopCh)
}

func (s *ScheduleRunner) run() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.tick(); err != nil {
				log.WithComponent("migration-schedule").Error().Err(err).Msg("scheduled migration sweep failed")
			}
		case <-s.stopCh:
			return
		}
	}
}

func (s *ScheduleRunner) tick() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedules, err := s.store.ListScheduledMigrations()
	if err != nil {
		return fmt.Errorf("listing scheduled migrations: %w", err)
	}

	now := time.Now().UTC()
	for _, sched := range schedules {
		if !sched.Enabled {
			continue
		}
		if sched.NextRun != nil && now.Before(*sched.NextRun) {
			continue
		}
		if err := s.fire(sched, now); err != nil {
			log.WithComponent("migration-schedule").Error().Err(err).Str("schedule_id", sched.ID).Msg("failed to fire scheduled migration")
			continue
		}
	}
	return nil
}

func (s *ScheduleRunner) fire(sched *types.ScheduledMigration, now time.Time) error {
	target := types.RemoteInstance{InstanceID: sched.TargetInstanceID}
	if inst, err := s.store.GetRemoteInstance(sched.TargetInstanceID); err == nil && inst != nil {
		target = *inst
	}

	if _, err := s.transfer.StartTransfer(target, sched.Collections, string(ConflictSkip), 0); err != nil {
		return fmt.Errorf("starting scheduled transfer: %w", err)
	}

	next, err := nextRun(sched.CronExpression, now)
	if err != nil {
		return fmt.Errorf("parsing cron expression %q: %w", sched.CronExpression, err)
	}

	sched.LastRun = &now
	sched.NextRun = &next
	return s.store.UpdateScheduledMigration(sched)
}

// cronField is one of the five standard cron fields: minute, hour,
// day-of-month, month, or day-of-week. "*" and "*/N" step expressions and
// comma-separated lists are supported; ranges ("1-5") are not, which
// covers every cadence the migration scheduling UI actually offers
// (hourly, daily, weekly, and "every N minutes/hours").
type cronField struct {
	wildcard bool
	step     int
	values   map[int]bool
}

func parseCronField(raw string, min, max int) (cronField, error) {
	if raw == "*" {
		return cronField{wildcard: true}, nil
	}
	if strings.HasPrefix(raw, "*/") {
		step, err := strconv.Atoi(strings.TrimPrefix(raw, "*/"))
		if err != nil || step <= 0 {
			return cronField{}, fmt.Errorf("invalid step expression %q", raw)
		}
		return cronField{step: step}, nil
	}

	values := make(map[int]bool)
	for _, part := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < min || n > max {
			return cronField{}, fmt.Errorf("invalid field value %q", part)
		}
		values[n] = true
	}
	return cronField{values: values}, nil
}

func (f cronField) matches(v int) bool {
	if f.wildcard {
		return true
	}
	if f.step > 0 {
		return v%f.step == 0
	}
	return f.values[v]
}

type cronSchedule struct {
	minute, hour, dom, month, dow cronField
}

func parseCron(expr string) (*cronSchedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("expected 5 fields, got %d", len(fields))
	}

	minute, err := parseCronField(fields[0], 0, 59)
	if err != nil {
		return nil, fmt.Errorf("minute: %w", err)
	}
	hour, err := parseCronField(fields[1], 0, 23)
	if err != nil {
		return nil, fmt.Errorf("hour: %w", err)
	}
	dom, err := parseCronField(fields[2], 1, 31)
	if err != nil {
		return nil, fmt.Errorf("day-of-month: %w", err)
	}
	month, err := parseCronField(fields[3], 1, 12)
	if err != nil {
		return nil, fmt.Errorf("month: %w", err)
	}
	dow, err := parseCronField(fields[4], 0, 6)
	if err != nil {
		return nil, fmt.Errorf("day-of-week: %w", err)
	}

	return &cronSchedule{minute: minute, hour: hour, dom: dom, month: month, dow: dow}, nil
}

func (c *cronSchedule) matches(t time.Time) bool {
	return c.minute.matches(t.Minute()) &&
		c.hour.matches(t.Hour()) &&
		c.dom.matches(t.Day()) &&
		c.month.matches(int(t.Month())) &&
		c.dow.matches(int(t.Weekday()))
}

// nextRun scans forward minute by minute from the next whole minute after
// from, up to two years out, to find the next time expr fires.
func nextRun(expr string, from time.Time) (time.Time, error) {
	schedule, err := parseCron(expr)
	if err != nil {
		return time.Time{}, err
	}

	candidate := from.Truncate(time.Minute).Add(time.Minute)
	deadline := from.AddDate(2, 0, 0)
	for candidate.Before(deadline) {
		if schedule.matches(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}
	return time.Time{}, fmt.Errorf("no matching time found for %q within two years", expr)
}
