package log

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/livewatch-cli/livewatch/filesystem"
	"github.com/livewatch-cli/livewatch/key"
	"github.com/livewatch-cli/livewatch/where"
	"github.com/samber/lo"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/viper"
)

func init() {
	filesystem.SetMemMapFs()
}

func TestSetup(t *testing.T) {
	Convey("Log Setup", t, func() {
		Reset(func() {
			viper.Set(key.LogsWrite, false)
			enabled = false
		})

		Convey("Should stay disabled when writing is off", func() {
			viper.Set(key.LogsWrite, false)
			So(Setup(), ShouldBeNil)
			So(Enabled(), ShouldBeFalse)

			// must not panic without a backend
			WithFields(Fields{"session": "x"}).Infof("ignored %d", 1)
		})

		Convey("Should create a dated log file when writing is on", func() {
			viper.Set(key.LogsWrite, true)
			viper.Set(key.LogsLevel, "debug")
			So(Setup(), ShouldBeNil)
			So(Enabled(), ShouldBeTrue)

			path := filepath.Join(where.Logs(), time.Now().Format("2006-01-02")+".log")
			So(lo.Must(filesystem.API().Exists(path)), ShouldBeTrue)
		})
	})
}
