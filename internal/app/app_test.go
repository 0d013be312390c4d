package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/oauth2"

	"github.com/semmidev/dumpvault/internal/adapter/storage"
	"github.com/semmidev/dumpvault/internal/domain"
	"github.com/semmidev/dumpvault/internal/infrastructure/logger"
)

const testConfig = `
app:
  log_level: error
database:
  type: mysql
  host: 127.0.0.1
  port: 1
  username: backup
  databases: [shop]
backup:
  local_path: %s
storage:
  targets:
    - name: nas
      type: local
      enabled: true
      path: %s
scheduler:
  enabled: false
  cadence: every-6-hours
`

func TestApp(t *testing.T) {
	Convey("Given a config pointing at an unreachable database", t, func() {
		dir, err := os.MkdirTemp("", "app_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(dir)

		path := filepath.Join(dir, "config.yaml")
		body := fmt.Sprintf(testConfig, filepath.Join(dir, "backups"), filepath.Join(dir, "nas"))
		So(os.WriteFile(path, []byte(body), 0644), ShouldBeNil)
		So(os.MkdirAll(filepath.Join(dir, "nas"), 0755), ShouldBeNil)

		cfg, err := LoadConfig(path)
		So(err, ShouldBeNil)

		application, err := New(context.Background(), cfg)
		So(err, ShouldBeNil)
		defer application.Shutdown()

		Convey("It should wire a disabled scheduler with the configured cadence", func() {
			state := application.Scheduler().State()
			So(state.Enabled, ShouldBeFalse)
			So(state.Cadence, ShouldEqual, "every-6-hours")
			So(application.Scheduler().NextRun(), ShouldEqual, "not scheduled")
		})

		Convey("A backup should fail per database without aborting", func() {
			results, err := application.Backup(context.Background(), nil)
			So(err, ShouldBeNil)
			So(results["shop"].Success, ShouldBeFalse)
			So(results["shop"].FailedStage, ShouldEqual, domain.StageDumping)
			So(results["shop"].Error, ShouldContainSubstring, "database unreachable")
		})

		Convey("The scheduled job should report the failed batch", func() {
			err := application.Scheduler().RunNow(context.Background())
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "1 of 1")
		})

		Convey("Listing an empty store should return nothing", func() {
			artifacts, err := application.List("")
			So(err, ShouldBeNil)
			So(artifacts, ShouldBeEmpty)
		})

		Convey("A backup held by a storage target should be fetchable by name", func() {
			ctx := context.Background()
			name := "shop_full_20240301_020000.sql"
			So(os.WriteFile(filepath.Join(dir, "nas", name), []byte("CREATE TABLE t (id INT);\n"), 0644), ShouldBeNil)

			names, err := application.RemoteList(ctx, "nas")
			So(err, ShouldBeNil)
			So(names, ShouldResemble, []string{name})

			localPath, err := application.Fetch(ctx, "nas", name)
			So(err, ShouldBeNil)
			So(localPath, ShouldEqual, filepath.Join(dir, "backups", name))

			artifacts, err := application.List("shop")
			So(err, ShouldBeNil)
			So(len(artifacts), ShouldEqual, 1)

			_, err = application.Fetch(ctx, "nas", name)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "already exists")
		})

		Convey("Fetching from an unknown target should fail", func() {
			_, err := application.RemoteList(context.Background(), "tape")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "tape")
		})

		Convey("Status should report the database down and the target reachable", func() {
			report, err := application.Status(context.Background())
			So(err, ShouldBeNil)
			So(report.Database.Connected, ShouldBeFalse)
			So(report.Storage["nas"], ShouldBeTrue)
			So(report.Notifications, ShouldBeEmpty)
		})
	})

	Convey("Given a config with an unknown cadence", t, func() {
		dir, err := os.MkdirTemp("", "app_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(dir)

		path := filepath.Join(dir, "config.yaml")
		body := fmt.Sprintf(testConfig, dir, dir)
		body = body[:len(body)-len("every-6-hours\n")] + "twice-a-day\n"
		So(os.WriteFile(path, []byte(body), 0644), ShouldBeNil)

		Convey("LoadConfig should reject it as a scheduler config error", func() {
			_, err := LoadConfig(path)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "scheduler.cadence")
		})
	})
}

var oauth2Token = oauth2.Token{AccessToken: "access", RefreshToken: "refresh-me", TokenType: "Bearer"}

const testClientSecret = `{"installed":{"client_id":"id.apps.googleusercontent.com","client_secret":"shh",
"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token",
"redirect_uris":["http://localhost"]}}`

func TestDriveAuthorizer(t *testing.T) {
	Convey("Given a drive authorizer", t, func() {
		dir, err := os.MkdirTemp("", "oauth_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(dir)

		secret := filepath.Join(dir, "client_secret.json")
		So(os.WriteFile(secret, []byte(testClientSecret), 0600), ShouldBeNil)
		tokenPath := filepath.Join(dir, "tokens", "gdrive.json")

		authorizer, err := NewDriveAuthorizer(logger.NewNop(), secret, tokenPath, "http://localhost:8085/auth/google/callback")
		So(err, ShouldBeNil)

		Convey("The consent URL should ask for offline access with our state", func() {
			url := authorizer.AuthURL()
			So(url, ShouldContainSubstring, "access_type=offline")
			So(url, ShouldContainSubstring, "state="+authorizer.state)
			So(url, ShouldContainSubstring, "localhost%3A8085")
		})

		Convey("A saved token should be readable by the gdrive target", func() {
			So(authorizer.saveToken(&oauth2Token), ShouldBeNil)

			info, err := os.Stat(tokenPath)
			So(err, ShouldBeNil)
			So(info.Mode().Perm(), ShouldEqual, os.FileMode(0600))

			token, err := storage.LoadToken(tokenPath)
			So(err, ShouldBeNil)
			So(token.RefreshToken, ShouldEqual, "refresh-me")
		})

		Convey("Wait should give up when the context ends", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			So(authorizer.Wait(ctx), ShouldEqual, context.Canceled)
		})
	})

	Convey("Given a missing client secret", t, func() {
		_, err := NewDriveAuthorizer(logger.NewNop(), "/nonexistent/secret.json", "/tmp/token.json", "")

		Convey("It should fail", func() {
			So(err, ShouldNotBeNil)
		})
	})
}
