package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/semmidev/dumpvault/internal/domain"
)

// maxEveryHours caps every-N-hours at a leap year.
const maxEveryHours = 24 * 366

var (
	timeOfDayPattern  = regexp.MustCompile(`^([01]?\d|2[0-3]):([0-5]\d)$`)
	everyHoursPattern = regexp.MustCompile(`^every-(\d+)-hours?$`)
)

// Cadence is a parsed schedule descriptor:
//
//	daily@HH:MM     every day at HH:MM
//	hourly          at the top of every hour
//	every-N-hours   N hours after the previous run (or start)
//	weekly@HH:MM    every Sunday at HH:MM
type Cadence struct {
	spec     string
	expr     string
	schedule cron.Schedule
	interval bool
}

func ParseCadence(spec string) (Cadence, error) {
	spec = strings.ToLower(strings.TrimSpace(spec))

	var expr string
	switch {
	case spec == "hourly":
		expr = "0 * * * *"

	case strings.HasPrefix(spec, "daily@"), strings.HasPrefix(spec, "weekly@"):
		kind, at, _ := strings.Cut(spec, "@")
		m := timeOfDayPattern.FindStringSubmatch(at)
		if m == nil {
			return Cadence{}, fmt.Errorf("%w: %q has an invalid time of day, want HH:MM", domain.ErrSchedulerConfig, spec)
		}
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		expr = fmt.Sprintf("%d %d * * *", minute, hour)
		if kind == "weekly" {
			expr = fmt.Sprintf("%d %d * * 0", minute, hour)
		}

	case everyHoursPattern.MatchString(spec):
		n, err := strconv.Atoi(everyHoursPattern.FindStringSubmatch(spec)[1])
		if err != nil || n < 1 {
			return Cadence{}, fmt.Errorf("%w: %q needs a positive hour count", domain.ErrSchedulerConfig, spec)
		}
		if n > maxEveryHours {
			return Cadence{}, fmt.Errorf("%w: %q exceeds %d hours", domain.ErrSchedulerConfig, spec, maxEveryHours)
		}
		c := Cadence{
			spec:     spec,
			schedule: cron.Every(time.Duration(n) * time.Hour),
			interval: true,
		}
		if 24%n == 0 {
			c.expr = fmt.Sprintf("0 */%d * * *", n)
		}
		return c, nil

	default:
		return Cadence{}, fmt.Errorf("%w: unknown cadence %q (want daily@HH:MM, hourly, every-N-hours or weekly@HH:MM)",
			domain.ErrSchedulerConfig, spec)
	}

	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return Cadence{}, fmt.Errorf("%w: %v", domain.ErrSchedulerConfig, err)
	}
	return Cadence{spec: spec, expr: expr, schedule: schedule}, nil
}

// ValidateCadence is the config-time check.
func ValidateCadence(spec string) error {
	_, err := ParseCadence(spec)
	return err
}

func (c Cadence) String() string {
	return c.spec
}

// Next returns the first fire time strictly after t.
func (c Cadence) Next(t time.Time) time.Time {
	return c.schedule.Next(t)
}

// Anchored reports whether the cadence counts from the previous run rather
// than the wall clock.
func (c Cadence) Anchored() bool {
	return c.interval
}

// CronExpr is the five-field crontab form of the cadence. every-N-hours only
// has one when N divides 24, and then it fires on the clock rather than
// counting from the previous run.
func (c Cadence) CronExpr() (string, error) {
	if c.expr == "" {
		return "", fmt.Errorf("%w: %q has no crontab equivalent", domain.ErrSchedulerConfig, c.spec)
	}
	return c.expr, nil
}

// CrontabLine renders a crontab entry that runs command on the cadence.
func (c Cadence) CrontabLine(command string) (string, error) {
	expr, err := c.CronExpr()
	if err != nil {
		return "", err
	}
	return expr + " " + command, nil
}
