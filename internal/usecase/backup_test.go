package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/dumpvault/internal/adapter/artifact"
	"github.com/semmidev/dumpvault/internal/adapter/compressor"
	"github.com/semmidev/dumpvault/internal/domain"
	"github.com/semmidev/dumpvault/internal/infrastructure/logger"
)

type pipelineFixture struct {
	dir      string
	store    *artifact.Store
	gateway  *fakeGateway
	targets  []*fakeTarget
	notifier *fakeNotifier
	recorder *fakeRecorder
	backup   *Backup
}

func newPipelineFixture(opts BackupOptions, comp domain.Compressor) *pipelineFixture {
	dir, err := os.MkdirTemp("", "pipeline_test")
	So(err, ShouldBeNil)

	store, err := artifact.New(dir, comp, logger.NewNop())
	So(err, ShouldBeNil)

	f := &pipelineFixture{
		dir:      dir,
		store:    store,
		gateway:  newFakeGateway(),
		notifier: &fakeNotifier{},
		recorder: &fakeRecorder{},
		targets: []*fakeTarget{
			{name: "target1"},
			{name: "target2", err: domain.NewTargetError("target2", domain.ErrConnect, errors.New("connection refused"))},
			{name: "target3"},
		},
	}

	storageTargets := make([]domain.StorageTarget, 0, len(f.targets))
	for _, t := range f.targets {
		storageTargets = append(storageTargets, t)
	}

	f.backup = NewBackup(
		f.gateway,
		store,
		NewFanout(storageTargets, logger.NewNop()),
		f.notifier,
		logger.NewNop(),
		opts,
		WithRecorder(f.recorder),
	)
	return f
}

func (f *pipelineFixture) workFiles() []os.DirEntry {
	entries, err := os.ReadDir(filepath.Join(f.dir, ".work"))
	So(err, ShouldBeNil)
	return entries
}

func TestBackupPipeline(t *testing.T) {
	Convey("Given a pipeline with three targets where target2 cannot connect", t, func() {
		f := newPipelineFixture(BackupOptions{
			Databases:     []string{"shop"},
			Compress:      true,
			RetentionDays: 30,
			MaxBackups:    10,
		}, compressor.NewGzipLevel(compressor.DefaultLevel))
		defer os.RemoveAll(f.dir)

		Convey("When backing up the configured databases", func() {
			results, err := f.backup.RunBackup(context.Background(), nil)
			So(err, ShouldBeNil)
			result := results["shop"]

			Convey("The upload outcome should record each target independently", func() {
				So(result.Uploads, ShouldResemble, domain.UploadOutcome{
					"target1": true,
					"target2": false,
					"target3": true,
				})
				for _, target := range f.targets {
					So(target.uploads.Load(), ShouldEqual, 1)
				}
			})

			Convey("The job should still succeed", func() {
				So(result.Success, ShouldBeTrue)
				So(result.Stage, ShouldEqual, domain.StageDone)
				So(result.Error, ShouldBeEmpty)
				So(domain.BatchSucceeded(results), ShouldBeTrue)
			})

			Convey("A verified compressed artifact should be in the store", func() {
				So(result.Artifact, ShouldNotBeNil)
				So(result.Artifact.Compressed, ShouldBeTrue)
				So(result.Artifact.Filename, ShouldStartWith, "shop_full_")
				So(result.Artifact.Filename, ShouldEndWith, ".sql.gz")
				So(result.ArtifactSize, ShouldBeGreaterThan, 0)

				sum, err := f.store.Checksum(result.Artifact.Path)
				So(err, ShouldBeNil)
				So(result.Artifact.Checksum, ShouldEqual, sum)

				listed, err := f.store.List("shop")
				So(err, ShouldBeNil)
				So(len(listed), ShouldEqual, 1)
				So(f.workFiles(), ShouldBeEmpty)
			})

			Convey("A notification and a metric should be emitted once", func() {
				So(f.notifier.count(), ShouldEqual, 1)
				So(f.notifier.results[0].JobID, ShouldNotBeEmpty)
				So(f.recorder.results.Load(), ShouldEqual, 1)
			})
		})

		Convey("When the dump fails", func() {
			f.gateway.dumpErrs["shop"] = errors.New("mysqldump: Got error: 1045 Access denied")
			results, err := f.backup.RunBackup(context.Background(), []string{"shop"})
			So(err, ShouldBeNil)
			result := results["shop"]

			Convey("The job should fail at the dump stage and skip uploads", func() {
				So(result.Success, ShouldBeFalse)
				So(result.Stage, ShouldEqual, domain.StageFailed)
				So(result.FailedStage, ShouldEqual, domain.StageDumping)
				So(result.Error, ShouldStartWith, "dump failed")
				So(result.Error, ShouldContainSubstring, "Access denied")
				So(result.Artifact, ShouldBeNil)
				for _, target := range f.targets {
					So(target.uploads.Load(), ShouldEqual, 0)
				}
			})

			Convey("A failure notification should still be sent with the elapsed time", func() {
				So(f.notifier.count(), ShouldEqual, 1)
				So(f.notifier.results[0].Success, ShouldBeFalse)
				So(f.notifier.results[0].Duration, ShouldBeGreaterThanOrEqualTo, 0)
			})

			Convey("The partial dump should be discarded", func() {
				So(f.workFiles(), ShouldBeEmpty)
				listed, _ := f.store.List("")
				So(listed, ShouldBeEmpty)
			})
		})

		Convey("When the database is unreachable", func() {
			f.gateway.pingErr = errors.New("dial tcp: connection refused")
			result, err := f.backup.RunSingle(context.Background(), "shop")

			Convey("It should be reported as a dump failure", func() {
				So(err, ShouldBeNil)
				So(result.FailedStage, ShouldEqual, domain.StageDumping)
				So(result.Error, ShouldContainSubstring, "database unreachable")
				So(f.gateway.dumped, ShouldBeEmpty)
			})
		})

		Convey("When one database of a batch fails", func() {
			f.gateway.dumpErrs["broken"] = errors.New("unknown database")
			results, err := f.backup.RunBackup(context.Background(), []string{"broken", "shop", "shop"})

			Convey("The rest of the batch should still run", func() {
				So(err, ShouldBeNil)
				So(len(results), ShouldEqual, 2)
				So(results["broken"].Success, ShouldBeFalse)
				So(results["shop"].Success, ShouldBeTrue)
				So(domain.BatchSucceeded(results), ShouldBeFalse)
				So(f.gateway.dumped, ShouldResemble, []string{"broken", "shop"})
				So(f.notifier.count(), ShouldEqual, 2)
			})
		})

		Convey("When given an explicit empty list", func() {
			results, err := f.backup.RunBackup(context.Background(), []string{})

			Convey("It should return an empty mapping without error", func() {
				So(err, ShouldBeNil)
				So(results, ShouldBeEmpty)
				So(f.gateway.dumped, ShouldBeEmpty)
			})
		})

		Convey("When a target panics", func() {
			f.backup.fanout.targets = append(f.backup.fanout.targets, &panickyTarget{fakeTarget{name: "wild"}})
			result, err := f.backup.RunSingle(context.Background(), "shop")

			Convey("It should count as a failed upload only", func() {
				So(err, ShouldBeNil)
				So(result.Success, ShouldBeTrue)
				So(result.Uploads["wild"], ShouldBeFalse)
			})
		})

		Convey("When old artifacts exceed retention", func() {
			old := time.Now().AddDate(0, 0, -45).Format("20060102_150405")
			So(os.WriteFile(filepath.Join(f.dir, "shop_full_"+old+".sql.gz"), []byte("old"), 0644), ShouldBeNil)

			result, err := f.backup.RunSingle(context.Background(), "shop")

			Convey("Cleanup should evict them after the upload", func() {
				So(err, ShouldBeNil)
				So(result.Evicted, ShouldEqual, 1)
				listed, _ := f.store.List("shop")
				So(len(listed), ShouldEqual, 1)
				So(listed[0].Filename, ShouldEqual, result.Artifact.Filename)
			})
		})
	})

	Convey("Given a pipeline whose compressor fails", t, func() {
		f := newPipelineFixture(BackupOptions{Compress: true}, failingCompressor{})
		defer os.RemoveAll(f.dir)

		result, err := f.backup.RunSingle(context.Background(), "shop")

		Convey("The job should fail at the compression stage", func() {
			So(err, ShouldBeNil)
			So(result.FailedStage, ShouldEqual, domain.StageCompressing)
			So(result.Error, ShouldStartWith, "compression failed")
			So(f.notifier.count(), ShouldEqual, 1)
			So(f.workFiles(), ShouldBeEmpty)
		})
	})

	Convey("Given a pipeline whose dump comes back empty", t, func() {
		f := newPipelineFixture(BackupOptions{Compress: false}, compressor.NewGzipLevel(compressor.DefaultLevel))
		defer os.RemoveAll(f.dir)
		f.gateway.body = ""

		result, err := f.backup.RunSingle(context.Background(), "shop")

		Convey("Verification should be fatal", func() {
			So(err, ShouldBeNil)
			So(result.Success, ShouldBeFalse)
			So(result.FailedStage, ShouldEqual, domain.StageVerifying)
			So(result.Error, ShouldStartWith, "verification failed")
			for _, target := range f.targets {
				So(target.uploads.Load(), ShouldEqual, 0)
			}
			So(f.notifier.count(), ShouldEqual, 1)
		})
	})

	Convey("Given a pipeline without compression", t, func() {
		f := newPipelineFixture(BackupOptions{Compress: false}, compressor.NewGzipLevel(compressor.DefaultLevel))
		defer os.RemoveAll(f.dir)

		result, err := f.backup.RunSingle(context.Background(), "shop")

		Convey("The artifact should be a plain .sql file", func() {
			So(err, ShouldBeNil)
			So(result.Success, ShouldBeTrue)
			So(result.Artifact.Compressed, ShouldBeFalse)
			So(strings.HasSuffix(result.Artifact.Filename, ".sql"), ShouldBeTrue)
		})
	})
}

func TestBackupSingleFlight(t *testing.T) {
	Convey("Given a pipeline whose dump is blocked mid-run", t, func() {
		f := newPipelineFixture(BackupOptions{Databases: []string{"shop"}, Compress: true}, compressor.NewGzipLevel(compressor.DefaultLevel))
		defer os.RemoveAll(f.dir)

		f.gateway.started = make(chan struct{}, 1)
		f.gateway.release = make(chan struct{})

		type outcome struct {
			results map[string]*domain.BackupResult
			err     error
		}
		done := make(chan outcome, 1)
		go func() {
			results, err := f.backup.RunBackup(context.Background(), nil)
			done <- outcome{results, err}
		}()
		<-f.gateway.started

		Convey("A second trigger should be rejected without disturbing the first", func() {
			So(f.backup.Running(), ShouldBeTrue)

			_, err := f.backup.RunBackup(context.Background(), nil)
			So(errors.Is(err, domain.ErrBackupInProgress), ShouldBeTrue)
			So(IsRejected(err), ShouldBeTrue)

			_, err = f.backup.RunSingle(context.Background(), "shop")
			So(errors.Is(err, domain.ErrBackupInProgress), ShouldBeTrue)
			So(f.recorder.rejected.Load(), ShouldEqual, 2)

			close(f.gateway.release)
			first := <-done
			So(first.err, ShouldBeNil)
			So(first.results["shop"].Success, ShouldBeTrue)
			So(f.backup.Running(), ShouldBeFalse)
			So(f.gateway.dumped, ShouldResemble, []string{"shop"})
		})
	})
}

func TestFanoutRemote(t *testing.T) {
	Convey("Given a fanout over plain and browsable targets", t, func() {
		fanout := NewFanout([]domain.StorageTarget{
			&fakeTarget{name: "chat"},
			&browsableTarget{fakeTarget: fakeTarget{name: "nas"}, files: []string{"shop_full_20240301_020000.sql.gz"}},
		}, logger.NewNop())

		Convey("Remote should hand back a target that can list", func() {
			remote, err := fanout.Remote("nas")
			So(err, ShouldBeNil)
			names, err := remote.List(context.Background())
			So(err, ShouldBeNil)
			So(names, ShouldResemble, []string{"shop_full_20240301_020000.sql.gz"})
		})

		Convey("Remote should refuse a target without listing", func() {
			_, err := fanout.Remote("chat")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "cannot list")
		})

		Convey("Remote should refuse an unknown name", func() {
			_, err := fanout.Remote("tape")
			So(err, ShouldNotBeNil)
		})
	})
}
