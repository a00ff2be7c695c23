package util

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/xmedia/xmedia/filesystem"
)

func TestQuantify(t *testing.T) {
	Convey("Quantify", t, func() {
		So(Quantify(1, "file", "files"), ShouldEqual, "1 file")
		So(Quantify(2, "file", "files"), ShouldEqual, "2 files")
	})
}

func TestCapitalize(t *testing.T) {
	Convey("Capitalize", t, func() {
		So(Capitalize("hello"), ShouldEqual, "Hello")
		So(Capitalize(""), ShouldEqual, "")
	})
}

func TestFormat(t *testing.T) {
	Convey("FormatBytes", t, func() {
		So(FormatBytes(512), ShouldEqual, "512 B")
		So(FormatBytes(1536), ShouldEqual, "1.5 KiB")
		So(FormatBytes(100*1024*1024), ShouldEqual, "100.0 MiB")
	})

	Convey("FormatBitrate", t, func() {
		So(FormatBitrate(2_500_000), ShouldEqual, "2.5 Mbps")
		So(FormatBitrate(128_000), ShouldEqual, "128 kbps")
		So(FormatBitrate(12), ShouldEqual, "12 bps")
	})

	Convey("FormatPosition", t, func() {
		So(FormatPosition(0), ShouldEqual, "0:00")
		So(FormatPosition(65_000), ShouldEqual, "1:05")
		So(FormatPosition(3_725_000), ShouldEqual, "1:02:05")
		So(FormatPosition(-10), ShouldEqual, "0:00")
	})
}

func TestDelete(t *testing.T) {
	Convey("Delete", t, func() {
		filesystem.SetMemMapFs()
		fs := filesystem.API()
		So(fs.MkdirAll("/tmp/x/y", 0o755), ShouldBeNil)
		So(fs.WriteFile("/tmp/x/y/z", []byte("z"), 0o644), ShouldBeNil)

		So(Delete("/tmp/x"), ShouldBeNil)
		exists, _ := fs.Exists("/tmp/x")
		So(exists, ShouldBeFalse)

		So(Delete("/tmp/missing"), ShouldNotBeNil)
	})
}
