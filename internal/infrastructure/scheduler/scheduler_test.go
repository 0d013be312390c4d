package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/dumpvault/internal/config"
	"github.com/semmidev/dumpvault/internal/domain"
	"github.com/semmidev/dumpvault/internal/infrastructure/logger"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestParseCadence(t *testing.T) {
	Convey("Given cadence descriptors", t, func() {
		Convey("Valid descriptors should parse", func() {
			for _, spec := range []string{"daily@02:00", "daily@23:59", "hourly", "every-6-hours", "every-1-hour", "weekly@03:30", " Daily@7:05 "} {
				_, err := ParseCadence(spec)
				So(err, ShouldBeNil)
			}
		})

		Convey("Invalid descriptors should be scheduler config errors", func() {
			for _, spec := range []string{"", "daily", "daily@25:00", "daily@02:60", "weekly@", "every-0-hours", "every-x-hours", "every-3000000-hours", "every-99999999999999999999-hours", "monthly@01:00", "0 2 * * *"} {
				err := ValidateCadence(spec)
				So(err, ShouldNotBeNil)
				So(errors.Is(err, domain.ErrSchedulerConfig), ShouldBeTrue)
			}
		})
	})
}

func TestCadenceNext(t *testing.T) {
	Convey("Given a reference time of Friday 2024-03-01", t, func() {
		at := func(day, hour, minute int) time.Time {
			return time.Date(2024, 3, day, hour, minute, 0, 0, time.Local)
		}

		Convey("daily@02:00 after 02:00 should fire tomorrow", func() {
			c, _ := ParseCadence("daily@02:00")
			So(c.Next(at(1, 3, 0)), ShouldEqual, at(2, 2, 0))
			So(c.Anchored(), ShouldBeFalse)
		})

		Convey("daily@02:00 before 02:00 should fire today", func() {
			c, _ := ParseCadence("daily@02:00")
			So(c.Next(at(1, 1, 0)), ShouldEqual, at(1, 2, 0))
		})

		Convey("hourly should fire at the top of the next hour", func() {
			c, _ := ParseCadence("hourly")
			So(c.Next(at(1, 3, 17)), ShouldEqual, at(1, 4, 0))
		})

		Convey("every-6-hours should count from the given time", func() {
			c, _ := ParseCadence("every-6-hours")
			So(c.Next(at(1, 3, 17)), ShouldEqual, at(1, 9, 17))
			So(c.Anchored(), ShouldBeTrue)
		})

		Convey("The longest interval should still fire a year out", func() {
			c, err := ParseCadence("every-8784-hours")
			So(err, ShouldBeNil)
			So(c.Next(at(1, 0, 0)).Sub(at(1, 0, 0)), ShouldEqual, 8784*time.Hour)
		})

		Convey("weekly@03:30 should fire on Sunday", func() {
			c, _ := ParseCadence("weekly@03:30")
			next := c.Next(at(1, 12, 0))
			So(next, ShouldEqual, at(3, 3, 30))
			So(next.Weekday(), ShouldEqual, time.Sunday)
		})
	})
}

func TestCadenceCrontab(t *testing.T) {
	Convey("Given cadences rendered for crontab", t, func() {
		expr := func(spec string) (string, error) {
			c, err := ParseCadence(spec)
			So(err, ShouldBeNil)
			return c.CronExpr()
		}

		Convey("Clock cadences should map to their cron fields", func() {
			for spec, want := range map[string]string{
				"daily@02:00":   "0 2 * * *",
				"weekly@03:30":  "30 3 * * 0",
				"hourly":        "0 * * * *",
				"every-6-hours": "0 */6 * * *",
			} {
				got, err := expr(spec)
				So(err, ShouldBeNil)
				So(got, ShouldEqual, want)
			}
		})

		Convey("An interval that does not divide a day should have no crontab form", func() {
			_, err := expr("every-5-hours")
			So(errors.Is(err, domain.ErrSchedulerConfig), ShouldBeTrue)

			_, err = expr("every-48-hours")
			So(errors.Is(err, domain.ErrSchedulerConfig), ShouldBeTrue)
		})

		Convey("A crontab line should append the command", func() {
			c, _ := ParseCadence("daily@02:00")
			line, err := c.CrontabLine("/usr/local/bin/dumpvault --config /etc/dumpvault.yaml backup")
			So(err, ShouldBeNil)
			So(line, ShouldEqual, "0 2 * * * /usr/local/bin/dumpvault --config /etc/dumpvault.yaml backup")
		})
	})
}

func TestSchedulerLoop(t *testing.T) {
	Convey("Given a running scheduler on a fake clock", t, func() {
		t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.Local)
		clock := &fakeClock{t: t0}

		var calls atomic.Int32
		job := func(ctx context.Context) error {
			switch calls.Add(1) {
			case 1:
				return errors.New("dump failed: access denied")
			case 2:
				panic("boom")
			}
			return nil
		}

		var observed []time.Time
		var observedMu sync.Mutex
		s, err := New(config.SchedulerConfig{
			Enabled:     true,
			Cadence:     "every-1-hours",
			Tick:        5 * time.Millisecond,
			StopTimeout: time.Second,
		}, job, logger.NewNop(), WithClock(clock.Now), WithNextRunObserver(func(t time.Time) {
			observedMu.Lock()
			observed = append(observed, t)
			observedMu.Unlock()
		}))
		So(err, ShouldBeNil)

		s.Start()
		defer s.Stop()

		Convey("It should schedule the first run one interval out", func() {
			state := s.State()
			So(state.Running, ShouldBeTrue)
			So(state.NextRun, ShouldEqual, t0.Add(time.Hour))
			So(s.NextRun(), ShouldEqual, t0.Add(time.Hour).Format("2006-01-02 15:04:05"))
			So(calls.Load(), ShouldEqual, 0)
		})

		Convey("It should keep firing after a failing and a panicking run", func() {
			for i := 1; i <= 3; i++ {
				fire := t0.Add(time.Duration(i) * time.Hour)
				clock.Set(fire)

				So(eventually(func() bool { return calls.Load() == int32(i) }), ShouldBeTrue)
				So(eventually(func() bool { return s.State().NextRun.Equal(fire.Add(time.Hour)) }), ShouldBeTrue)
			}

			state := s.State()
			So(state.Running, ShouldBeTrue)
			So(state.LastRun, ShouldEqual, t0.Add(3*time.Hour))
		})

		Convey("Stop should be idempotent and clear the next run", func() {
			So(s.Stop(), ShouldBeNil)
			So(s.Stop(), ShouldBeNil)
			So(s.NextRun(), ShouldEqual, "not scheduled")

			observedMu.Lock()
			defer observedMu.Unlock()
			So(observed[0], ShouldEqual, t0.Add(time.Hour))
			So(observed[len(observed)-1].IsZero(), ShouldBeTrue)
		})

		Convey("Start on a running scheduler should change nothing", func() {
			s.Start()
			So(s.State().NextRun, ShouldEqual, t0.Add(time.Hour))
		})
	})
}

func TestSchedulerRunNow(t *testing.T) {
	Convey("Given a scheduler whose job blocks", t, func() {
		started := make(chan struct{}, 1)
		release := make(chan struct{})
		job := func(ctx context.Context) error {
			started <- struct{}{}
			<-release
			return nil
		}

		s, err := New(config.SchedulerConfig{Cadence: "hourly"}, job, logger.NewNop())
		So(err, ShouldBeNil)

		done := make(chan error, 1)
		go func() { done <- s.RunNow(context.Background()) }()
		<-started

		Convey("A second trigger should be rejected while the first runs", func() {
			err := s.RunNow(context.Background())
			So(errors.Is(err, domain.ErrBackupInProgress), ShouldBeTrue)

			close(release)
			So(<-done, ShouldBeNil)
			So(s.State().LastRun.IsZero(), ShouldBeFalse)
		})
	})

	Convey("Given a scheduler whose job fails", t, func() {
		s, err := New(config.SchedulerConfig{Cadence: "hourly"}, func(ctx context.Context) error {
			return errors.New("1 of 2 databases failed")
		}, logger.NewNop())
		So(err, ShouldBeNil)

		Convey("RunNow should return the job error", func() {
			err := s.RunNow(context.Background())
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "1 of 2")
		})
	})
}

func TestSchedulerStopTimeout(t *testing.T) {
	Convey("Given a scheduler stuck in a long job", t, func() {
		t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.Local)
		clock := &fakeClock{t: t0}
		started := make(chan struct{}, 1)
		release := make(chan struct{})

		s, err := New(config.SchedulerConfig{
			Enabled:     true,
			Cadence:     "hourly",
			Tick:        5 * time.Millisecond,
			StopTimeout: 50 * time.Millisecond,
		}, func(ctx context.Context) error {
			started <- struct{}{}
			<-release
			return nil
		}, logger.NewNop(), WithClock(clock.Now))
		So(err, ShouldBeNil)

		s.Start()
		clock.Set(t0.Add(time.Hour))
		<-started

		Convey("Stop should give up after the timeout", func() {
			err := s.Stop()
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "did not stop")
			So(s.State().Running, ShouldBeFalse)
			close(release)
		})
	})
}

func TestSchedulerConfigure(t *testing.T) {
	Convey("Given a disabled scheduler", t, func() {
		s, err := New(config.SchedulerConfig{Cadence: "daily@02:00", Tick: time.Hour}, func(ctx context.Context) error {
			return nil
		}, logger.NewNop())
		So(err, ShouldBeNil)

		Convey("Start should be a no-op", func() {
			s.Start()
			So(s.State().Running, ShouldBeFalse)
			So(s.NextRun(), ShouldEqual, "not scheduled")
		})

		Convey("An invalid cadence should be rejected and leave the state alone", func() {
			err := s.Configure("fortnightly", true)
			So(errors.Is(err, domain.ErrSchedulerConfig), ShouldBeTrue)

			state := s.State()
			So(state.Cadence, ShouldEqual, "daily@02:00")
			So(state.Enabled, ShouldBeFalse)
			So(state.Running, ShouldBeFalse)
		})

		Convey("Enabling it should start the loop and disabling it should stop it", func() {
			So(s.Configure("weekly@03:30", true), ShouldBeNil)
			state := s.State()
			So(state.Running, ShouldBeTrue)
			So(state.Cadence, ShouldEqual, "weekly@03:30")
			So(state.NextRun.Weekday(), ShouldEqual, time.Sunday)

			So(s.Configure("weekly@03:30", false), ShouldBeNil)
			So(s.State().Running, ShouldBeFalse)
			So(s.NextRun(), ShouldEqual, "not scheduled")
		})
	})

	Convey("Given an enabled scheduler this process never started", t, func() {
		now := time.Date(2024, 3, 1, 3, 0, 0, 0, time.Local)
		s, err := New(config.SchedulerConfig{Enabled: true, Cadence: "daily@02:00"}, func(ctx context.Context) error {
			return nil
		}, logger.NewNop(), WithClock(func() time.Time { return now }))
		So(err, ShouldBeNil)

		Convey("It should report the fire time it would use", func() {
			state := s.State()
			So(state.Running, ShouldBeFalse)
			So(state.NextRun, ShouldEqual, time.Date(2024, 3, 2, 2, 0, 0, 0, time.Local))
			So(s.NextRun(), ShouldEqual, "2024-03-02 02:00:00")
		})

		Convey("Once started and stopped it should report nothing scheduled", func() {
			s.Start()
			So(s.Stop(), ShouldBeNil)
			So(s.NextRun(), ShouldEqual, "not scheduled")
		})
	})

	Convey("Given an invalid cadence at construction", t, func() {
		_, err := New(config.SchedulerConfig{Cadence: "sometimes"}, nil, logger.NewNop())

		Convey("New should fail", func() {
			So(errors.Is(err, domain.ErrSchedulerConfig), ShouldBeTrue)
		})
	})
}
