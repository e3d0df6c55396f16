package cron

import (
	"errors"
	"fmt"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// Entry is a recurring job schedule.
type Entry struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	Queue    string `json:"queue,omitempty"`
	Tag      string `json:"tag"`
	Args     []any  `json:"args,omitempty"`
}

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// Validate checks that e can be scheduled.
func (e Entry) Validate() error {
	if e.Name == "" {
		return errors.New("cron entry without name")
	}
	if e.Tag == "" {
		return fmt.Errorf("cron entry %q: empty tag", e.Name)
	}
	if _, err := ParseSchedule(e.Schedule); err != nil {
		return fmt.Errorf("cron entry %q: %w", e.Name, err)
	}
	return nil
}

// state is the runtime view of one entry.
type state struct {
	entry    Entry
	schedule cronlib.Schedule
	next     time.Time
	lastRun  time.Time
}
