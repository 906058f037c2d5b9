// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/mmr"
	"periph.io/x/host/v3"

	"github.com/asesyuk/icm20948-ekf/internal/geom"
	"github.com/asesyuk/icm20948-ekf/internal/imu"
)

var sleep = time.Sleep

// ICM20948Options selects the bus and the sensor ranges.
type ICM20948Options struct {
	Bus  string // periph I2C bus name, "" for the default bus
	Addr uint16

	// AccelRange: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	AccelRange byte
	// GyroRange: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	GyroRange byte
	// DLPF is the low pass filter setting (0-7) for both accel and gyro.
	DLPF byte
	// SampleRateDiv: output rate = 1125 Hz / (1 + div).
	SampleRateDiv byte
}

// regIO is the subset of *mmr.Dev8 the driver needs.
type regIO interface {
	ReadUint8(reg uint8) (uint8, error)
	ReadStruct(reg uint8, b interface{}) error
	WriteUint8(reg uint8, v uint8) error
}

// ICM20948 reads accelerometer, gyroscope and the AK09916 magnetometer.
// It implements imu.Source.
type ICM20948 struct {
	name   string
	dev    regIO
	closer io.Closer

	curBank  byte
	accelLSB float64 // g per count
	gyroLSB  float64 // deg/s per count
	magReady bool
}

// OpenICM20948 initializes periph, opens the I2C bus and brings up the
// sensor. A magnetometer that fails to start is logged and the source keeps
// running with MagValid=false.
func OpenICM20948(opts ICM20948Options) (*ICM20948, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("icm20948: periph host init: %w", err)
	}
	bus, err := i2creg.Open(opts.Bus)
	if err != nil {
		return nil, fmt.Errorf("icm20948: open I2C bus %q: %w", opts.Bus, err)
	}
	if opts.Addr == 0 {
		opts.Addr = icmDefaultAddr
	}
	dev := &mmr.Dev8{Conn: &i2c.Dev{Bus: bus, Addr: opts.Addr}, Order: binary.BigEndian}

	d, err := newICM20948(dev, opts)
	if err != nil {
		bus.Close()
		return nil, err
	}
	d.name = fmt.Sprintf("icm20948@%s/0x%02X", bus, opts.Addr)
	d.closer = bus
	return d, nil
}

func newICM20948(dev regIO, opts ICM20948Options) (*ICM20948, error) {
	if opts.AccelRange > 3 || opts.GyroRange > 3 || opts.DLPF > 7 {
		return nil, fmt.Errorf("icm20948: invalid ranges accel=%d gyro=%d dlpf=%d", opts.AccelRange, opts.GyroRange, opts.DLPF)
	}
	d := &ICM20948{name: "icm20948", dev: dev, curBank: 0xFF}

	if err := d.setBank(0); err != nil {
		return nil, err
	}
	who, err := d.dev.ReadUint8(regWhoAmI)
	if err != nil {
		return nil, fmt.Errorf("icm20948: whoami read failed: %w", err)
	}
	if who != icmWhoAmIVal {
		return nil, fmt.Errorf("icm20948: whoami=0x%02X want 0x%02X", who, icmWhoAmIVal)
	}

	if err := d.init(opts); err != nil {
		return nil, err
	}
	if err := d.initMag(); err != nil {
		log.Printf("icm20948: magnetometer initialization failed (will continue without mag): %v", err)
	} else {
		d.magReady = true
	}
	return d, nil
}

func (d *ICM20948) init(opts ICM20948Options) error {
	if err := d.write(0, regPwrMgmt1, bitDeviceReset); err != nil {
		return fmt.Errorf("icm20948: reset failed: %w", err)
	}
	// Reset returns the bank to 0.
	d.curBank = 0
	sleep(100 * time.Millisecond)

	if err := d.write(0, regPwrMgmt1, clkSelAuto); err != nil {
		return fmt.Errorf("icm20948: wake failed: %w", err)
	}
	sleep(50 * time.Millisecond)
	if err := d.write(0, regPwrMgmt2, 0x00); err != nil {
		return fmt.Errorf("icm20948: enable sensors failed: %w", err)
	}

	// [5:3] DLPF, [2:1] full scale, [0] DLPF enable.
	gyroCfg := opts.DLPF<<3 | opts.GyroRange<<1 | 0x01
	accelCfg := opts.DLPF<<3 | opts.AccelRange<<1 | 0x01
	writes := []struct {
		bank, reg, val byte
		what           string
	}{
		{2, regGyroSmplrtDiv, opts.SampleRateDiv, "gyro sample rate"},
		{2, regAccelSmplrtDiv2, opts.SampleRateDiv, "accel sample rate"},
		{2, regGyroConfig1, gyroCfg, "gyro config"},
		{2, regAccelConfig, accelCfg, "accel config"},
	}
	for _, w := range writes {
		if err := d.write(w.bank, w.reg, w.val); err != nil {
			return fmt.Errorf("icm20948: %s failed: %w", w.what, err)
		}
	}

	d.accelLSB = accelBaseG * float64(int(1)<<opts.AccelRange) / countsFullScale
	d.gyroLSB = gyroBaseDPS * float64(int(1)<<opts.GyroRange) / countsFullScale
	log.Printf("icm20948: accel ±%.0fg, gyro ±%.0f°/s, dlpf %d, output %.1f Hz",
		accelBaseG*float64(int(1)<<opts.AccelRange), gyroBaseDPS*float64(int(1)<<opts.GyroRange),
		opts.DLPF, 1125.0/(1+float64(opts.SampleRateDiv)))
	return nil
}

// initMag enables the I2C master, resets the AK09916, puts it in 50 Hz
// continuous mode and leaves SLV0 reading ST1..ST2 every sample.
func (d *ICM20948) initMag() error {
	if err := d.write(3, regI2CMstCtrl, i2cMstCtrl400k); err != nil {
		return fmt.Errorf("i2c master clock: %w", err)
	}
	if err := d.write(0, regIntPinCfg, intPinCfgMaster); err != nil {
		return fmt.Errorf("disable bypass: %w", err)
	}
	if err := d.write(0, regUserCtrl, bitI2CMasterEn); err != nil {
		return fmt.Errorf("enable i2c master: %w", err)
	}
	sleep(20 * time.Millisecond)

	wia, err := d.readMag(akRegWIA2)
	if err != nil {
		return err
	}
	if wia != ak09916WIA2Val {
		return fmt.Errorf("ak09916 WIA2=0x%02X want 0x%02X", wia, ak09916WIA2Val)
	}
	steps := []struct {
		reg, val byte
		wait     time.Duration
	}{
		{akRegCNTL3, akSoftReset, 200 * time.Millisecond},
		{akRegCNTL2, akModePowerDn, 100 * time.Millisecond},
		{akRegCNTL2, akModeCont50Hz, 100 * time.Millisecond},
	}
	for _, s := range steps {
		if err := d.writeMag(s.reg, s.val); err != nil {
			return err
		}
		sleep(s.wait)
	}
	mode, err := d.readMag(akRegCNTL2)
	if err != nil {
		return err
	}
	if mode != akModeCont50Hz {
		return fmt.Errorf("ak09916 mode=0x%02X want 0x%02X", mode, akModeCont50Hz)
	}

	// Continuous SLV0 read of the whole data block.
	if err := d.slv0(ak09916Addr|slvReadFlag, akRegST1, slvEnable|akBlockLen); err != nil {
		return err
	}
	log.Printf("icm20948: AK09916 magnetometer in continuous mode")
	return nil
}

func (d *ICM20948) slv0(addr, reg, ctrl byte) error {
	for _, w := range [][2]byte{{regSlv0Addr, addr}, {regSlv0Reg, reg}, {regSlv0Ctrl, ctrl}} {
		if err := d.write(3, w[0], w[1]); err != nil {
			return fmt.Errorf("slv0 setup: %w", err)
		}
	}
	return nil
}

func (d *ICM20948) writeMag(reg, val byte) error {
	if err := d.write(3, regSlv0Do, val); err != nil {
		return fmt.Errorf("ak09916 write 0x%02X: %w", reg, err)
	}
	if err := d.slv0(ak09916Addr, reg, slvEnable|1); err != nil {
		return fmt.Errorf("ak09916 write 0x%02X: %w", reg, err)
	}
	sleep(10 * time.Millisecond)
	return nil
}

func (d *ICM20948) readMag(reg byte) (byte, error) {
	if err := d.slv0(ak09916Addr|slvReadFlag, reg, slvEnable|1); err != nil {
		return 0, fmt.Errorf("ak09916 read 0x%02X: %w", reg, err)
	}
	sleep(10 * time.Millisecond)
	if err := d.setBank(0); err != nil {
		return 0, err
	}
	v, err := d.dev.ReadUint8(regExtSlvSensData)
	if err != nil {
		return 0, fmt.Errorf("ak09916 read 0x%02X: %w", reg, err)
	}
	return v, nil
}

func (d *ICM20948) setBank(bank byte) error {
	if d.curBank == bank {
		return nil
	}
	if err := d.dev.WriteUint8(regBankSel, bank<<4); err != nil {
		return fmt.Errorf("icm20948: set bank %d failed: %w", bank, err)
	}
	d.curBank = bank
	return nil
}

func (d *ICM20948) write(bank, reg, val byte) error {
	if err := d.setBank(bank); err != nil {
		return err
	}
	return d.dev.WriteUint8(reg, val)
}

// Next reads one sample: accel (g), gyro (deg/s), mag (µT).
func (d *ICM20948) Next(ctx context.Context) (imu.Sample, error) {
	if err := ctx.Err(); err != nil {
		return imu.Sample{}, err
	}
	if err := d.setBank(0); err != nil {
		return imu.Sample{}, err
	}

	// ACCEL_XOUT_H .. TEMP_OUT_L, then EXT_SLV_SENS_DATA_00..08.
	buf := make([]byte, 14+akBlockLen)
	n := 14
	if d.magReady {
		n = len(buf)
	}
	if err := d.dev.ReadStruct(regAccelXoutH, buf[:n]); err != nil {
		return imu.Sample{}, fmt.Errorf("%s: read sensors failed: %w", d.name, err)
	}

	s := imu.Sample{Source: d.name, Time: time.Now()}
	for i := 0; i < 3; i++ {
		s.Accel[i] = float64(beInt16(buf[2*i:])) * d.accelLSB
		s.Gyro[i] = float64(beInt16(buf[6+2*i:])) * d.gyroLSB
	}

	if d.magReady {
		mag := buf[14:]
		st1, st2 := mag[0], mag[8]
		var m geom.Vec3
		for i := 0; i < 3; i++ {
			m[i] = float64(int16(binary.LittleEndian.Uint16(mag[1+2*i:]))) * magMicroTeslaPerLSB
		}
		s.Mag = m
		s.MagValid = st1&akST1DataReady != 0 && st2&akST2Overflow == 0
	}
	return s, nil
}

func (d *ICM20948) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

func beInt16(b []byte) int16 {
	return int16(binary.BigEndian.Uint16(b))
}
