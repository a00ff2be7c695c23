package config

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/viper"
	"github.com/xmedia/xmedia/filesystem"
	"github.com/xmedia/xmedia/key"
)

func init() {
	filesystem.SetMemMapFs()
}

func TestSetup(t *testing.T) {
	Convey("Config Setup", t, func() {
		Convey("Should initialize without error", func() {
			So(Setup(), ShouldBeNil)
		})

		Convey("Should have default values populated", func() {
			_ = Setup()
			for name := range Default {
				So(viper.Get(name), ShouldNotBeNil)
			}
		})

		Convey("EnvKeyReplacer should convert dots to underscores", func() {
			So(EnvKeyReplacer.Replace("cache.max_size_bytes"), ShouldEqual, "cache_max_size_bytes")
		})

		Convey("Field env names should carry the application prefix", func() {
			f := Default[key.CacheEnabled]
			So(f.Env(), ShouldEqual, "XMEDIA_CACHE_ENABLED")
		})
	})
}

func TestLoad(t *testing.T) {
	Convey("Given the registered defaults", t, func() {
		So(Setup(), ShouldBeNil)
		viper.Set(key.Preset, "")

		Convey("Load should reproduce the default preset", func() {
			p, err := Load()
			So(err, ShouldBeNil)
			So(p, ShouldResemble, DefaultPlayer())
		})

		Convey("A preset key should win over individual keys", func() {
			viper.Set(key.Preset, PresetDataSaver)
			defer viper.Set(key.Preset, "")

			p, err := Load()
			So(err, ShouldBeNil)
			So(p.Cache.MaxSizeBytes, ShouldEqual, 50*mb)
			So(p.Selection.MaxVideoHeight, ShouldEqual, 720)
		})

		Convey("An unknown preset should fail", func() {
			viper.Set(key.Preset, "turbo")
			defer viper.Set(key.Preset, "")

			_, err := Load()
			So(err, ShouldNotBeNil)
		})
	})
}

func TestPresets(t *testing.T) {
	Convey("Presets", t, func() {
		Convey("Should all validate", func() {
			for _, name := range Presets() {
				p, ok := Preset(name)
				So(ok, ShouldBeTrue)
				So(p.Validate(), ShouldBeNil)
			}
		})

		Convey("HighPerformance", func() {
			p := HighPerformancePlayer()
			So(p.Cache.Enabled, ShouldBeTrue)
			So(p.Cache.MaxSizeBytes, ShouldEqual, 600*mb)
			So(p.Selection.BandwidthFraction, ShouldEqual, 1.1)
			So(p.Bandwidth.InitialBitrateEstimate, ShouldEqual, 3_000_000)
			So(p.Bandwidth.UseExperimentalEstimator, ShouldBeTrue)
			So(p.Buffering.MaxBufferMs, ShouldBeGreaterThan, DefaultPlayer().Buffering.MaxBufferMs)
		})

		Convey("LowLatency and Default should not cache", func() {
			So(LowLatencyPlayer().Cache.Enabled, ShouldBeFalse)
			So(DefaultPlayer().Cache.Enabled, ShouldBeFalse)
			So(LowLatencyPlayer().Buffering.MaxBufferMs, ShouldBeLessThan, DefaultPlayer().Buffering.MaxBufferMs)
		})

		Convey("DataSaver", func() {
			p := DataSaverPlayer()
			So(p.Selection.MaxVideoHeight, ShouldEqual, 720)
			So(p.Selection.MaxVideoBitrate, ShouldEqual, 2_000_000)
			So(p.Selection.BandwidthFraction, ShouldEqual, 0.8)
			So(p.Bandwidth.InitialBitrateEstimate, ShouldEqual, 1_000_000)
		})

		Convey("Cache configs compare by value", func() {
			a := DefaultPlayer().Cache
			b := DefaultPlayer().Cache
			So(a == b, ShouldBeTrue)
			b.MaxSizeBytes++
			So(a == b, ShouldBeFalse)
		})
	})

	Convey("Validate", t, func() {
		p := DefaultPlayer()

		Convey("Should reject min buffer above max buffer", func() {
			p.Buffering.MinBufferMs = p.Buffering.MaxBufferMs + 1
			So(p.Validate(), ShouldNotBeNil)
		})

		Convey("Should reject conflicting force flags", func() {
			p.Selection.ForceLowestBitrate = true
			p.Selection.ForceHighestSupportedBitrate = true
			So(p.Validate(), ShouldNotBeNil)
		})
	})
}
