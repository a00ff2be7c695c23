package version

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestCompare(t *testing.T) {
	Convey("Compare", t, func() {
		Convey("orders by major, minor and patch", func() {
			for _, tc := range []struct {
				a, b string
				want int
			}{
				{"1.0.0", "0.9.9", 1},
				{"0.3.0", "0.3.1", -1},
				{"v0.3.0", "0.3.0", 0},
				{"2.0.0", "10.0.0", -1},
			} {
				got, err := Compare(tc.a, tc.b)
				So(err, ShouldBeNil)
				So(got, ShouldEqual, tc.want)
			}
		})

		Convey("rejects malformed versions", func() {
			_, err := Compare("latest", "0.3.0")
			So(err, ShouldNotBeNil)
		})
	})
}
