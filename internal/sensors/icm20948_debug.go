// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import "fmt"

// RegisterValue is one named register read by DumpRegisters.
type RegisterValue struct {
	Device string `json:"device"` // "icm20948" or "ak09916"
	Bank   byte   `json:"bank"`
	Addr   byte   `json:"addr"`
	Name   string `json:"name"`
	Value  byte   `json:"value"`
}

func (r RegisterValue) String() string {
	return fmt.Sprintf("%-8s bank %d 0x%02X %-18s = 0x%02X (%08b)", r.Device, r.Bank, r.Addr, r.Name, r.Value, r.Value)
}

var debugRegisters = []struct {
	bank, addr byte
	name       string
}{
	{0, regWhoAmI, "WHO_AM_I"},
	{0, regUserCtrl, "USER_CTRL"},
	{0, regPwrMgmt1, "PWR_MGMT_1"},
	{0, regPwrMgmt2, "PWR_MGMT_2"},
	{0, regIntPinCfg, "INT_PIN_CFG"},
	{2, regGyroSmplrtDiv, "GYRO_SMPLRT_DIV"},
	{2, regGyroConfig1, "GYRO_CONFIG_1"},
	{2, regAccelSmplrtDiv2, "ACCEL_SMPLRT_DIV_2"},
	{2, regAccelConfig, "ACCEL_CONFIG"},
	{3, regI2CMstCtrl, "I2C_MST_CTRL"},
	{3, regSlv0Addr, "I2C_SLV0_ADDR"},
	{3, regSlv0Reg, "I2C_SLV0_REG"},
	{3, regSlv0Ctrl, "I2C_SLV0_CTRL"},
}

// DumpRegisters reads the configuration registers of the ICM-20948 and,
// when the magnetometer is up, the AK09916 identity and mode. Reading the
// AK09916 reprograms SLV0, so streaming is restored before returning.
func (d *ICM20948) DumpRegisters() ([]RegisterValue, error) {
	var out []RegisterValue
	for _, r := range debugRegisters {
		if err := d.setBank(r.bank); err != nil {
			return out, err
		}
		v, err := d.dev.ReadUint8(r.addr)
		if err != nil {
			return out, fmt.Errorf("icm20948: read %s: %w", r.name, err)
		}
		out = append(out, RegisterValue{Device: "icm20948", Bank: r.bank, Addr: r.addr, Name: r.name, Value: v})
	}
	if !d.magReady {
		return out, nil
	}

	for _, r := range []struct {
		addr byte
		name string
	}{
		{akRegWIA2, "WIA2"},
		{akRegCNTL2, "CNTL2"},
	} {
		v, err := d.readMag(r.addr)
		if err != nil {
			return out, err
		}
		out = append(out, RegisterValue{Device: "ak09916", Addr: r.addr, Name: r.name, Value: v})
	}
	if err := d.slv0(ak09916Addr|slvReadFlag, akRegST1, slvEnable|akBlockLen); err != nil {
		return out, err
	}
	return out, nil
}
