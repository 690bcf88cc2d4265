// Package mccdaq provides access to Measurement Computing USB-1608FS-Plus
// data acquisition devices over libusb
package mccdaq

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/gotmc/libusb"
)

const (
	vendorID  = 0x09db
	productID = 0x00ea

	// usbTimeout is the control/bulk transfer timeout in milliseconds
	usbTimeout = 2000

	// the ADC is 16-bit, two's complement about mid-scale
	converter    = 32768
	bytesPerWord = 2

	numChannels   = 8
	numGainLevels = 8

	maxBulkPacketSize = 64

	resetSettle = 500 * time.Millisecond
)

type command byte

const (
	commandAnalogInput       command = 0x10
	commandAnalogStartScan   command = 0x11
	commandAnalogStopScan    command = 0x12
	commandAnalogConfig      command = 0x14
	commandAnalogClearBuffer command = 0x15
	commandCalibrationMemory command = 0x30
	commandBlinkLED          command = 0x41
	commandReset             command = 0x42
	commandGetStatus         command = 0x44
	commandSerialNum         command = 0x48
)

// status register bits
const (
	statusScanRunning = 1 << 1
	statusScanOverrun = 1 << 2
)

// VoltageRange selects the full scale input range of an analog channel.
type VoltageRange byte

// Input ranges supported by the USB-1608FS-Plus.
const (
	Range10V     VoltageRange = 0x0
	Range5V      VoltageRange = 0x1
	Range2_5V    VoltageRange = 0x2
	Range2V      VoltageRange = 0x3
	Range1_25V   VoltageRange = 0x4
	Range1V      VoltageRange = 0x5
	Range0_625V  VoltageRange = 0x6
	Range0_3125V VoltageRange = 0x7
)

// rangeMultiplier maps a VoltageRange to its full scale voltage
var rangeMultiplier = map[VoltageRange]float64{
	Range10V:     10.0,
	Range5V:      5.0,
	Range2_5V:    2.5,
	Range2V:      2.0,
	Range1_25V:   1.25,
	Range1V:      1.0,
	Range0_625V:  0.625,
	Range0_3125V: 0.3125,
}

var rangeStrings = map[VoltageRange]string{
	Range10V:     "±10V",
	Range5V:      "±5V",
	Range2_5V:    "±2.5V",
	Range2V:      "±2V",
	Range1_25V:   "±1.25V",
	Range1V:      "±1V",
	Range0_625V:  "±0.625V",
	Range0_3125V: "±0.3125V",
}

func (v VoltageRange) String() string {
	return rangeStrings[v]
}

// GainTable holds the per-range, per-channel calibration coefficients read
// from the device's nonvolatile memory.  Raw codes are corrected as
// code*Slope[range][channel] + Intercept[range][channel] before conversion
// to volts.
type GainTable struct {
	Slope     [][]float64
	Intercept [][]float64
}

// DAQ is a USB-1608FS-Plus.
type DAQ struct {
	dev      *libusb.Device
	handle   *libusb.DeviceHandle
	bulkAddr byte
	cal      GainTable
}

// NewDAQ opens the first USB-1608FS-Plus on the bus and reads its
// calibration memory.
func NewDAQ(ctx *libusb.Context) (*DAQ, error) {
	dev, dh, err := ctx.OpenDeviceWithVendorProduct(vendorID, productID)
	if err != nil {
		return nil, fmt.Errorf("opening USB-1608FS-Plus: %w", err)
	}
	return setup(dev, dh)
}

// NewDAQBySerial opens the USB-1608FS-Plus with the given serial number.
func NewDAQBySerial(ctx *libusb.Context, sn string) (*DAQ, error) {
	devs, err := ctx.GetDeviceList()
	if err != nil {
		return nil, fmt.Errorf("listing USB devices: %w", err)
	}
	for _, dev := range devs {
		desc, err := dev.GetDeviceDescriptor()
		if err != nil {
			continue
		}
		if desc.VendorID != vendorID || desc.ProductID != productID {
			continue
		}
		dh, err := dev.Open()
		if err != nil {
			return nil, fmt.Errorf("opening candidate device: %w", err)
		}
		got, err := dh.GetStringDescriptorASCII(desc.SerialNumberIndex)
		if err != nil {
			dh.Close()
			return nil, fmt.Errorf("reading serial number: %w", err)
		}
		if got == sn {
			return setup(dev, dh)
		}
		dh.Close()
	}
	return nil, fmt.Errorf("no USB-1608FS-Plus with serial %q found", sn)
}

func setup(dev *libusb.Device, dh *libusb.DeviceHandle) (*DAQ, error) {
	if err := dh.ClaimInterface(0); err != nil {
		return nil, fmt.Errorf("claiming bulk interface: %w", err)
	}
	cfg, err := dev.GetActiveConfigDescriptor()
	if err != nil {
		return nil, fmt.Errorf("reading config descriptor: %w", err)
	}
	ep := cfg.SupportedInterfaces[0].InterfaceDescriptors[0].EndpointDescriptors[0]
	d := &DAQ{dev: dev, handle: dh, bulkAddr: byte(ep.EndpointAddress)}
	d.cal, err = d.buildGainTable()
	if err != nil {
		return nil, fmt.Errorf("reading calibration memory: %w", err)
	}
	return d, nil
}

// Close releases the USB interface, resets the device, and closes the handle.
func (d *DAQ) Close() error {
	if err := d.handle.ReleaseInterface(0); err != nil {
		return fmt.Errorf("releasing interface: %w", err)
	}
	time.Sleep(resetSettle)
	if err := d.reset(); err != nil {
		return err
	}
	time.Sleep(resetSettle)
	return d.handle.Close()
}

func (d *DAQ) sendCommand(cmd command, data []byte) error {
	if data == nil {
		data = []byte{0}
	}
	rt := libusb.BitmapRequestType(
		libusb.HostToDevice, libusb.Vendor, libusb.DeviceRecipient)
	_, err := d.handle.ControlTransfer(rt, byte(cmd), 0, 0, data, len(data), usbTimeout)
	return err
}

func (d *DAQ) readCommand(cmd command, data []byte) (int, error) {
	rt := libusb.BitmapRequestType(
		libusb.DeviceToHost, libusb.Vendor, libusb.DeviceRecipient)
	return d.handle.ControlTransfer(rt, byte(cmd), 0, 0, data, len(data), usbTimeout)
}

func (d *DAQ) bulkRead(p []byte) (int, error) {
	return d.handle.BulkTransfer(d.bulkAddr, p, len(p), usbTimeout)
}

func (d *DAQ) reset() error {
	rt := libusb.BitmapRequestType(
		libusb.HostToDevice, libusb.Vendor, libusb.DeviceRecipient)
	_, err := d.handle.ControlTransfer(rt, byte(commandReset), 0, 0, []byte{0}, 1, usbTimeout)
	return err
}

// Status reads the device status register.
func (d *DAQ) Status() (byte, error) {
	data := make([]byte, 2)
	if _, err := d.readCommand(commandGetStatus, data); err != nil {
		return 0, err
	}
	return data[0], nil
}

// SerialNumber reads the device serial number.
func (d *DAQ) SerialNumber() (string, error) {
	data := make([]byte, 8)
	n, err := d.readCommand(commandSerialNum, data)
	if err != nil {
		return "", err
	}
	return string(data[:n]), nil
}

// BlinkLED blinks the device LED the given number of times, which is handy
// for telling multiple units apart.
func (d *DAQ) BlinkLED(count int) error {
	return d.sendCommand(commandBlinkLED, []byte{byte(count)})
}

// buildGainTable reads the per-range, per-channel slope and intercept pairs
// stored as little endian IEEE-754 singles in calibration flash.
func (d *DAQ) buildGainTable() (GainTable, error) {
	slope := make([][]float64, numGainLevels)
	intercept := make([][]float64, numGainLevels)
	addr := 0
	buf := make([]byte, 4)
	for i := 0; i < numGainLevels; i++ {
		slope[i] = make([]float64, numChannels)
		intercept[i] = make([]float64, numChannels)
		for j := 0; j < numChannels; j++ {
			if err := d.readCalMemory(addr, buf); err != nil {
				return GainTable{}, err
			}
			slope[i][j] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf)))
			addr += len(buf)
			if err := d.readCalMemory(addr, buf); err != nil {
				return GainTable{}, err
			}
			intercept[i][j] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf)))
			addr += len(buf)
		}
	}
	return GainTable{Slope: slope, Intercept: intercept}, nil
}

func (d *DAQ) readCalMemory(address int, data []byte) error {
	if address+len(data) > 0x300 {
		return fmt.Errorf("calibration memory read past 0x2FF")
	}
	rt := libusb.BitmapRequestType(
		libusb.DeviceToHost, libusb.Vendor, libusb.DeviceRecipient)
	_, err := d.handle.ControlTransfer(
		rt, byte(commandCalibrationMemory), uint16(address), 0, data, len(data), usbTimeout)
	return err
}

// Volts converts a calibration-adjusted code to a voltage for the given
// input range.
func Volts(code int, rng VoltageRange) float64 {
	return rangeMultiplier[rng] * float64(code-converter) / converter
}

// VoltsFromWord converts a 2-byte little endian sample to a voltage, applying
// the slope and intercept calibration before scaling to the input range.
func VoltsFromWord(data []byte, rng VoltageRange, slope, intercept float64) (float64, error) {
	if len(data) != bytesPerWord {
		return 0, fmt.Errorf("sample words are %d bytes, got %d", bytesPerWord, len(data))
	}
	raw := binary.LittleEndian.Uint16(data)
	adj := math.Round(float64(raw)*slope + intercept)
	return Volts(int(adj), rng), nil
}
