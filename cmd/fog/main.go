// Command fog drives fiber optic gyro characterization runs from the
// shell: tombstone recordings, scale factor calibrations, ARW
// measurements, and the small motions around them.
package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fog-lab/gyrolab/gyro"
	"github.com/fog-lab/gyrolab/util"
)

var rootCmd = &cobra.Command{
	Use:   "fog",
	Short: "characterize fiber optic gyroscopes",
	Long: `fog sequences the rotation stage, lock-in amplifier, and DAQ on the
gyro bench through the standard characterization procedures.  The bench
is described by flags: a gyro descriptor file, the rotation stage (an
HTTP URL of a gyrosrv rotation node, or a serial device path), the
lock-in amplifier address, and the DAQ to record from.`,
}

var (
	flagGyro  string
	flagRot   string
	flagLIA   string
	flagDAQ   string
	flagLog   string
	flagQuiet bool
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagGyro, "gyro", "g", "", "path to the gyro descriptor json")
	pf.StringVar(&flagRot, "rot", "", "rotation stage, http URL or serial device path")
	pf.StringVar(&flagLIA, "lia", "", "lock-in amplifier address")
	pf.StringVar(&flagDAQ, "daq", "sim", "DAQ to read, sim | usb1608fs[:serial] | ni9215[:dev]")
	pf.StringVar(&flagLog, "log", "", "bench log directory, no file log when empty")
	pf.BoolVarP(&flagQuiet, "quiet", "q", false, "no spinner")

	rootCmd.AddCommand(tombstoneCmd, scaleFactorCmd, arwCmd, autophaseCmd, homeCmd)

	tf := tombstoneCmd.Flags()
	tf.Float64Var(&flagSeconds, "seconds", 0, "recording length, seconds component")
	tf.Float64Var(&flagMinutes, "minutes", 0, "recording length, minutes component")
	tf.Float64Var(&flagHours, "hours", 0, "recording length, hours component")
	tf.Float64Var(&flagRate, "rate", 10, "sample rate in Hz")
	tf.BoolVar(&flagAutophase, "autophase", false, "run the autophase routine first")
	tf.Float64Var(&flagScale, "scale-factor", 0, "scale factor in (deg/h)/V, 0 calibrates")
	tf.StringVarP(&flagOut, "output", "o", "tombstone.csv", "output CSV path")

	af := arwCmd.Flags()
	af.Float64Var(&flagSeconds, "seconds", 60, "recording length in seconds")
	af.Float64Var(&flagRate, "rate", 100, "sample rate in Hz")
	af.Float64Var(&flagScale, "scale-factor", 0, "scale factor in (deg/h)/V, 0 calibrates")
}

var (
	flagSeconds   float64
	flagMinutes   float64
	flagHours     float64
	flagRate      float64
	flagAutophase bool
	flagScale     float64
	flagOut       string
)

// signalContext returns a context canceled by ctrl-C.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

var tombstoneCmd = &cobra.Command{
	Use:   "tombstone",
	Short: "record a no-rotation baseline",
	Long: `tombstone parks the gyro and records the scaled rotation rate.  With a
duration (--seconds/--minutes/--hours) the recording has a fixed length;
without one it runs until the Allan deviation curve resolves a drift
floor, then stops itself.  The record is written as CSV.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()
		b, log, err := buildBench()
		if err != nil {
			return err
		}
		duration := util.SecsToDuration(flagSeconds + flagMinutes*60 + flagHours*3600)
		spin := startSpinner("recording")
		tmb, err := b.Tombstone(ctx, gyro.TombstoneOptions{
			Duration:    duration,
			Rate:        flagRate,
			Autophase:   flagAutophase,
			ScaleFactor: flagScale,
		})
		if err != nil {
			stopSpinner(spin, false)
			return err
		}
		if duration == 0 {
			// open-ended: wait for convergence or ctrl-C
			select {
			case <-tmb.Done():
			case <-ctx.Done():
				tmb.Stop()
				<-tmb.Done()
			}
			if err := tmb.Err(); err != nil {
				stopSpinner(spin, false)
				return err
			}
		}
		stopSpinner(spin, true)
		log.Infof("tombstone complete, %d samples at %g Hz, scale factor %g",
			tmb.Len(), tmb.Rate, tmb.ScaleFactor)
		if arw, err := tmb.ARW(); err == nil {
			fmt.Printf("ARW: %g deg/rt-hour\n", arw)
		}
		return writeCSV(flagOut, tmb)
	},
}

var scaleFactorCmd = &cobra.Command{
	Use:   "scale-factor",
	Short: "calibrate the volts to rotation rate conversion",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()
		b, log, err := buildBench()
		if err != nil {
			return err
		}
		spin := startSpinner("calibrating")
		s, err := b.ScaleFactor(ctx, gyro.ScaleFactorOptions{})
		stopSpinner(spin, err == nil)
		if err != nil {
			return err
		}
		log.Infof("scale factor calibrated to %g (deg/h)/V", s)
		fmt.Printf("%g\n", s)
		return nil
	},
}

var arwCmd = &cobra.Command{
	Use:   "arw",
	Short: "measure the angular random walk",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()
		b, log, err := buildBench()
		if err != nil {
			return err
		}
		spin := startSpinner("recording")
		arw, err := b.ARW(ctx, flagSeconds, flagRate, flagScale)
		stopSpinner(spin, err == nil)
		if err != nil {
			return err
		}
		log.Infof("ARW measured as %g deg/rt-hour", arw)
		fmt.Printf("%g\n", arw)
		return nil
	},
}

var autophaseCmd = &cobra.Command{
	Use:   "autophase",
	Short: "place the rotation signal in the lock-in's X quadrature",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()
		b, log, err := buildBench()
		if err != nil {
			return err
		}
		spin := startSpinner("autophasing")
		err = b.Autophase(ctx, 0, 0)
		stopSpinner(spin, err == nil)
		if err == nil {
			log.Info("autophase complete")
		}
		return err
	},
}

var homeCmd = &cobra.Command{
	Use:   "home",
	Short: "return the stage to its zero position",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, log, err := buildBench()
		if err != nil {
			return err
		}
		if err := b.Home(); err != nil {
			return err
		}
		log.Info("stage homed")
		return nil
	},
}

// writeCSV dumps a tombstone record, one row per sample with elapsed
// time, the raw voltage, and the scaled rate.
func writeCSV(path string, tmb *gyro.Tombstone) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write([]string{"seconds", "volts", "deg_per_hour"}); err != nil {
		return err
	}
	row := make([]string, 3)
	for i, v := range tmb.Data() {
		row[0] = strconv.FormatFloat(float64(i)/tmb.Rate, 'G', -1, 64)
		row[1] = strconv.FormatFloat(v, 'G', -1, 64)
		row[2] = strconv.FormatFloat(v*tmb.ScaleFactor, 'G', -1, 64)
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
