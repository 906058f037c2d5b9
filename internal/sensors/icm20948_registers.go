// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

// ICM-20948 register map (user banks selected through REG_BANK_SEL) and the
// AK09916 magnetometer reached through the ICM's auxiliary I2C master.
const (
	icmDefaultAddr = 0x69 // AD0 high, as on the breakout
	icmWhoAmIVal   = 0xEA

	regBankSel = 0x7F

	// Bank 0.
	regWhoAmI         = 0x00
	regUserCtrl       = 0x03
	regPwrMgmt1       = 0x06
	regPwrMgmt2       = 0x07
	regIntPinCfg      = 0x0F
	regAccelXoutH     = 0x2D // accel, gyro, temp and EXT_SLV_SENS_DATA are contiguous
	regExtSlvSensData = 0x3B

	bitDeviceReset  = 0x80
	clkSelAuto      = 0x01
	bitI2CMasterEn  = 0x20
	intPinCfgMaster = 0x00 // bypass off, the ICM owns the aux bus

	// Bank 2.
	regGyroSmplrtDiv   = 0x00
	regGyroConfig1     = 0x01
	regAccelSmplrtDiv2 = 0x11
	regAccelConfig     = 0x14

	// Bank 3.
	regI2CMstCtrl = 0x01
	regSlv0Addr   = 0x03
	regSlv0Reg    = 0x04
	regSlv0Ctrl   = 0x05
	regSlv0Do     = 0x06

	i2cMstCtrl400k = 0x4D
	slvReadFlag    = 0x80
	slvEnable      = 0x80
)

const (
	ak09916Addr    = 0x0C
	ak09916WIA2Val = 0x09

	akRegWIA2  = 0x01
	akRegST1   = 0x10 // ST1, HXL..HZH, TMPS, ST2: nine bytes
	akRegCNTL2 = 0x31
	akRegCNTL3 = 0x32

	akST1DataReady = 0x01
	akST2Overflow  = 0x08
	akModePowerDn  = 0x00
	akModeCont50Hz = 0x06
	akSoftReset    = 0x01

	akBlockLen = 9
)

// Raw-count scales. Accel and gyro full scale is ±2^range times the base.
const (
	accelBaseG          = 2.0
	gyroBaseDPS         = 250.0
	countsFullScale     = 32768.0
	magMicroTeslaPerLSB = 4912.0 / 32752.0
)
