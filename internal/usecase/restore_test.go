package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/dumpvault/internal/adapter/artifact"
	"github.com/semmidev/dumpvault/internal/adapter/compressor"
	"github.com/semmidev/dumpvault/internal/domain"
	"github.com/semmidev/dumpvault/internal/infrastructure/logger"
)

func TestRestore(t *testing.T) {
	Convey("Given a store holding a compressed and a plain artifact", t, func() {
		dir, err := os.MkdirTemp("", "restore_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(dir)

		store, err := artifact.New(dir, compressor.NewGzipLevel(compressor.DefaultLevel), logger.NewNop())
		So(err, ShouldBeNil)

		plain := filepath.Join(dir, "shop_full_20240301_020000.sql")
		So(os.WriteFile(plain, []byte("CREATE TABLE plain (id INT);"), 0644), ShouldBeNil)

		raw := filepath.Join(dir, "shop_full_20240302_020000.sql")
		So(os.WriteFile(raw, []byte("CREATE TABLE packed (id INT);"), 0644), ShouldBeNil)
		So(compressor.NewGzipLevel(compressor.DefaultLevel).Compress(raw, raw+".gz"), ShouldBeNil)
		So(os.Remove(raw), ShouldBeNil)

		gateway := newFakeGateway()
		restore := NewRestore(gateway, store, logger.NewNop())
		ctx := context.Background()

		Convey("A compressed artifact should be expanded, restored and cleaned up", func() {
			So(restore.Execute(ctx, "shop_copy", "shop_full_20240302_020000.sql.gz"), ShouldBeNil)
			So(gateway.restored["shop_copy"], ShouldEqual, "CREATE TABLE packed (id INT);")

			entries, err := os.ReadDir(filepath.Join(dir, ".work"))
			So(err, ShouldBeNil)
			So(entries, ShouldBeEmpty)

			_, err = os.Stat(raw + ".gz")
			So(err, ShouldBeNil)
		})

		Convey("A plain artifact should be restored from its own path", func() {
			So(restore.Execute(ctx, "shop", plain), ShouldBeNil)
			So(gateway.restored["shop"], ShouldEqual, "CREATE TABLE plain (id INT);")
		})

		Convey("An unknown artifact should fail as not found", func() {
			err := restore.Execute(ctx, "shop", "shop_full_19990101_000000.sql.gz")
			So(errors.Is(err, domain.ErrRestoreFailed), ShouldBeTrue)
			So(errors.Is(err, domain.ErrArtifactNotFound), ShouldBeTrue)
			So(gateway.restored, ShouldBeEmpty)
		})

		Convey("A gateway failure should be fatal and still clean the temp file", func() {
			gateway.restoreErr = errors.New("ERROR 1064 (42000) at line 1")

			err := restore.Execute(ctx, "shop", "shop_full_20240302_020000.sql.gz")
			So(errors.Is(err, domain.ErrRestoreFailed), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "ERROR 1064")

			entries, _ := os.ReadDir(filepath.Join(dir, ".work"))
			So(entries, ShouldBeEmpty)
		})
	})
}

func TestStatus(t *testing.T) {
	Convey("Given a status use case over a populated store", t, func() {
		dir, err := os.MkdirTemp("", "status_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(dir)

		store, err := artifact.New(dir, compressor.NewGzipLevel(compressor.DefaultLevel), logger.NewNop())
		So(err, ShouldBeNil)
		for _, name := range []string{
			"shop_full_20240301_020000.sql.gz",
			"shop_full_20240302_020000.sql.gz",
			"crm_full_20240303_020000.sql.gz",
		} {
			So(os.WriteFile(filepath.Join(dir, name), []byte("0123456789"), 0644), ShouldBeNil)
		}

		gateway := newFakeGateway()
		fanout := NewFanout([]domain.StorageTarget{
			&fakeTarget{name: "s3"},
			&fakeTarget{name: "ftp", err: domain.NewTargetError("ftp", domain.ErrAuth, errors.New("530 Login incorrect"))},
		}, logger.NewNop())
		schedule := func() domain.ScheduleState {
			return domain.ScheduleState{Enabled: true, Cadence: "hourly"}
		}
		status := NewStatus(gateway, store, fanout, fakeChannels{"email": true}, schedule, logger.NewNop())

		Convey("Report should summarize every subsystem", func() {
			report, err := status.Report(context.Background())
			So(err, ShouldBeNil)
			So(report.Database.Connected, ShouldBeTrue)
			So(report.Database.Databases, ShouldResemble, []string{"crm", "shop"})
			So(report.Artifacts.Count, ShouldEqual, 3)
			So(report.Artifacts.Newest.Filename, ShouldEqual, "crm_full_20240303_020000.sql.gz")
			So(report.Artifacts.Oldest.Filename, ShouldEqual, "shop_full_20240301_020000.sql.gz")
			So(report.Artifacts.TotalSizeMB, ShouldBeGreaterThan, 0)
			So(report.Storage, ShouldResemble, map[string]bool{"s3": true, "ftp": false})
			So(report.Notifications["email"], ShouldBeTrue)
			So(report.Scheduler.Cadence, ShouldEqual, "hourly")
		})

		Convey("Report should carry the error when the database is down", func() {
			gateway.pingErr = errors.New("connection refused")
			report, err := status.Report(context.Background())
			So(err, ShouldBeNil)
			So(report.Database.Connected, ShouldBeFalse)
			So(report.Database.Error, ShouldContainSubstring, "connection refused")
			So(report.Database.Databases, ShouldBeEmpty)
		})

		Convey("DatabaseInfo should combine size, tables and artifacts", func() {
			info, err := status.DatabaseInfo(context.Background(), "shop")
			So(err, ShouldBeNil)
			So(info.SizeMB, ShouldEqual, 42.5)
			So(info.TablesCount, ShouldEqual, 9)
			So(info.ArtifactCount, ShouldEqual, 2)
			So(info.Latest.Filename, ShouldEqual, "shop_full_20240302_020000.sql.gz")
		})
	})
}
