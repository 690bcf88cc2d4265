package mccdaq

import (
	"testing"

	c "github.com/smartystreets/goconvey/convey"
)

func TestPackScanData(t *testing.T) {
	testCases := []struct {
		numScans  int
		frequency float64
		channels  byte
		options   byte
		packet    []byte
	}{
		{1, 0.0, 0x00, 0x00, []byte{0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}},
		{256, 10e3, 0x01, 0x02, []byte{0x00, 0x01, 0x00, 0x00, 0x9f, 0x0f, 0x00, 0x00, 0x01, 0x02}},
		{100, 10e6, 0xff, 0xff, []byte{0x64, 0x00, 0x00, 0x00, 0x8f, 0x01, 0x00, 0x00, 0xff, 0xff}},
	}
	c.Convey("Given the scan configurations to pack", t, func() {
		for _, tc := range testCases {
			got := packScanData(tc.numScans, tc.frequency, tc.channels, tc.options)
			c.So(got, c.ShouldResemble, tc.packet)
		}
	})
}

func TestPacerPeriod(t *testing.T) {
	testCases := []struct {
		frequency float64
		period    int
	}{
		{0, 0},
		{-5, 0},
		{10e3, 3999},
		{100e3, 399},
		// rates past the pacer limit clamp to 100 kHz
		{500e3, 399},
	}
	c.Convey("Given sample frequencies to convert to pacer counts", t, func() {
		for _, tc := range testCases {
			c.So(pacerPeriod(tc.frequency), c.ShouldEqual, tc.period)
		}
	})
}

func TestVolts(t *testing.T) {
	c.Convey("Given raw ADC codes on the ±10V range", t, func() {
		c.Convey("mid-scale is zero volts", func() {
			c.So(Volts(32768, Range10V), c.ShouldEqual, 0)
		})
		c.Convey("zero code is negative full scale", func() {
			c.So(Volts(0, Range10V), c.ShouldEqual, -10)
		})
		c.Convey("the ±1V range scales accordingly", func() {
			c.So(Volts(49152, Range1V), c.ShouldEqual, 0.5)
		})
	})
}

func TestVoltsFromWord(t *testing.T) {
	c.Convey("Given 2-byte samples with identity calibration", t, func() {
		v, err := VoltsFromWord([]byte{0x00, 0x80}, Range10V, 1, 0)
		c.So(err, c.ShouldBeNil)
		c.So(v, c.ShouldEqual, 0)

		c.Convey("calibration offsets shift the result", func() {
			v, err := VoltsFromWord([]byte{0x00, 0x80}, Range10V, 1, 3276.8)
			c.So(err, c.ShouldBeNil)
			c.So(v, c.ShouldAlmostEqual, 1, 1e-3)
		})

		c.Convey("short words are rejected", func() {
			_, err := VoltsFromWord([]byte{0x00}, Range10V, 1, 0)
			c.So(err, c.ShouldNotBeNil)
		})
	})
}
