// Package tmp102 provides a driver for the TI TMP102 I2C temperature sensor.
//
// The device powers up converting continuously, so the simplest cycle is
// Configure followed by periodic ReadRaw. Duty-cycled rigs can instead park
// the device and convert on demand:
//
//	d.Shutdown()
//	err := d.TriggerOneShot()   // start a single conversion (fast)
//	ok, _ := d.Ready()          // true once the result is latched
//
// For convenience, d.OneShot() performs trigger + bounded polling until
// ready. The raw LSB is 0.0625°C in both 12-bit and extended 13-bit mode;
// fixed-point helpers return tenths of °C.
package tmp102

import (
	"errors"
	"time"

	"tinygo.org/x/drivers"

	"rtcore-go/x/mathx"
)

// I2C address with ADD0 strapped to ground.
const Address = 0x48

// Pointer registers.
const (
	regTemp   = 0x00
	regConfig = 0x01
	regTLow   = 0x02
	regTHigh  = 0x03
)

// Configuration word bits (transmitted MSB first).
const (
	cfgOneShot  = 0x8000
	cfgShutdown = 0x0100
	cfgAlert    = 0x0020
	cfgExtended = 0x0010

	cfgRateMask = 0x00C0

	// Power-up value: 12-bit resolution, 4 Hz, alert idle.
	cfgDefault = 0x60A0
)

// Rate selects the continuous conversion rate.
type Rate uint8

const (
	Rate4Hz Rate = iota // power-up default
	RateQuarterHz
	Rate1Hz
	Rate8Hz
)

func (r Rate) bits() uint16 {
	switch r {
	case RateQuarterHz:
		return 0x0000
	case Rate1Hz:
		return 0x0040
	case Rate8Hz:
		return 0x00C0
	default:
		return 0x0080
	}
}

// ErrTimeout reports a one-shot conversion that never latched.
var ErrTimeout = errors.New("tmp102: timeout")

// Config controls addressing and conversion behaviour. All fields are optional.
type Config struct {
	// Address defaults to 0x48 if zero.
	Address uint16
	// Rate is the continuous conversion rate. Default 4 Hz.
	Rate Rate
	// Extended enables the 13-bit format (readings above 128°C).
	Extended bool
	// PollInterval is used by OneShot() between Ready() attempts.
	// Default 5 ms.
	PollInterval time.Duration
	// CollectTimeout bounds the total wait in OneShot(). Default 150 ms.
	CollectTimeout time.Duration
}

// Device wraps an I2C connection to a TMP102 device.
type Device struct {
	bus     drivers.I2C
	Address uint16

	cfg Config
	w   [3]byte // reuse buffers to avoid allocations
	r   [2]byte
	raw int16 // last raw sample, LSB = 0.0625°C
}

// New creates a new TMP102 connection. The I2C bus must already be
// configured. This function only creates the Device object; it does not
// touch the device.
func New(bus drivers.I2C) Device {
	return Device{bus: bus, Address: Address}
}

// Configure applies optional config and programs the conversion rate.
// It may be called with no cfg to take the defaults.
func (d *Device) Configure(cfgs ...Config) {
	if len(cfgs) > 0 {
		c := cfgs[0]
		if c.Address != 0 {
			d.Address = c.Address
		}
		if c.PollInterval <= 0 {
			c.PollInterval = 5 * time.Millisecond
		}
		if c.CollectTimeout <= 0 {
			c.CollectTimeout = 150 * time.Millisecond
		}
		d.cfg = c
	} else {
		d.cfg = Config{
			Address:        d.Address,
			PollInterval:   5 * time.Millisecond,
			CollectTimeout: 150 * time.Millisecond,
		}
	}

	word := cfgDefault&^cfgRateMask | d.cfg.Rate.bits()
	if d.cfg.Extended {
		word |= cfgExtended
	}
	_ = d.writeConfig(word)
}

// Shutdown stops continuous conversion. The temperature register keeps the
// last latched value; TriggerOneShot converts on demand from this state.
func (d *Device) Shutdown() error {
	w, err := d.readConfig()
	if err != nil {
		return err
	}
	return d.writeConfig(w | cfgShutdown)
}

// TriggerOneShot starts a single conversion. Only meaningful in shutdown.
func (d *Device) TriggerOneShot() error {
	w, err := d.readConfig()
	if err != nil {
		return err
	}
	return d.writeConfig(w | cfgOneShot)
}

// Ready reports whether a one-shot conversion has latched. The OS bit reads
// 0 while the device converts and 1 once the result is in.
func (d *Device) Ready() (bool, error) {
	w, err := d.readConfig()
	if err != nil {
		return false, err
	}
	return w&cfgOneShot != 0, nil
}

// OneShot runs a full single-conversion cycle: trigger, bounded polling
// until ready, then a register read.
func (d *Device) OneShot() (int16, error) {
	if d.cfg.PollInterval == 0 {
		d.Configure()
	}
	if err := d.TriggerOneShot(); err != nil {
		return 0, err
	}
	deadline := time.Now().Add(d.cfg.CollectTimeout)
	for {
		ok, err := d.Ready()
		if err != nil {
			return 0, err
		}
		if ok {
			return d.ReadRaw()
		}
		if time.Now().After(deadline) {
			return 0, ErrTimeout
		}
		time.Sleep(d.cfg.PollInterval)
	}
}

// ReadRaw fetches the temperature register and caches the signed raw count.
// Extended-mode words flag themselves in bit 0, so 13-bit readings parse
// correctly even if Configure was never told.
func (d *Device) ReadRaw() (int16, error) {
	d.w[0] = regTemp
	if err := d.bus.Tx(d.Address, d.w[:1], d.r[:2]); err != nil {
		return 0, err
	}
	word := int16(uint16(d.r[0])<<8 | uint16(d.r[1]))
	if d.cfg.Extended || d.r[1]&0x01 != 0 {
		d.raw = word >> 3
	} else {
		d.raw = word >> 4
	}
	return d.raw, nil
}

// DeciCelsius returns the last sample in tenths of °C.
func (d *Device) DeciCelsius() int32 {
	return int32(d.raw) * 5 / 8
}

// Celsius returns the last sample in °C. Prefer DeciCelsius for fixed-point.
func (d *Device) Celsius() float32 {
	return float32(d.raw) * 0.0625
}

// SampleCelsius reads once and returns °C. The signature fits the sensor
// registry's SourceFunc adaptor.
func (d *Device) SampleCelsius() (float64, error) {
	raw, err := d.ReadRaw()
	if err != nil {
		return 0, err
	}
	return float64(raw) * 0.0625, nil
}

// SetAlertLimits programs the thermostat window in tenths of °C.
func (d *Device) SetAlertLimits(lowDeciC, highDeciC int32) error {
	if err := d.writeTempReg(regTLow, lowDeciC); err != nil {
		return err
	}
	return d.writeTempReg(regTHigh, highDeciC)
}

// AlertActive reports the thermostat comparator state. With default
// polarity the AL bit reads 0 while the alert asserts.
func (d *Device) AlertActive() (bool, error) {
	w, err := d.readConfig()
	if err != nil {
		return false, err
	}
	return w&cfgAlert == 0, nil
}

// Register operations (16-bit words, HIGH byte first).

func (d *Device) readConfig() (uint16, error) {
	d.w[0] = regConfig
	if err := d.bus.Tx(d.Address, d.w[:1], d.r[:2]); err != nil {
		return 0, err
	}
	return uint16(d.r[0])<<8 | uint16(d.r[1]), nil
}

func (d *Device) writeConfig(word uint16) error {
	d.w[0] = regConfig
	d.w[1] = byte(word >> 8)
	d.w[2] = byte(word)
	return d.bus.Tx(d.Address, d.w[:3], nil)
}

func (d *Device) writeTempReg(reg byte, deciC int32) error {
	// Clamp to the register's representable window so out-of-range limits
	// saturate instead of wrapping.
	if d.cfg.Extended {
		deciC = mathx.Clamp(deciC, -2560, 2559)
	} else {
		deciC = mathx.Clamp(deciC, -1280, 1279)
	}
	raw := deciC * 8 / 5
	var word uint16
	if d.cfg.Extended {
		word = uint16(raw << 3)
	} else {
		word = uint16(raw << 4)
	}
	d.w[0] = reg
	d.w[1] = byte(word >> 8)
	d.w[2] = byte(word)
	return d.bus.Tx(d.Address, d.w[:3], nil)
}
