// internal/driver/yaesu/descriptor.go
package yaesu

import (
	"time"

	"hamlink/internal/caps"
	"hamlink/internal/model"
	"hamlink/pkg/driver"
)

// newcat MD0 mode codes
var modeCodes = map[driver.Mode]byte{
	driver.ModeLSB:    '1',
	driver.ModeUSB:    '2',
	driver.ModeCW:     '3',
	driver.ModeFM:     '4',
	driver.ModeAM:     '5',
	driver.ModeRTTY:   '6',
	driver.ModeCWR:    '7',
	driver.ModePKTLSB: '8',
	driver.ModeRTTYR:  '9',
	driver.ModePKTFM:  'A',
	driver.ModeFMN:    'B',
	driver.ModePKTUSB: 'C',
	driver.ModeAMN:    'D',
}

// strengthCal maps the raw SM0 reading to dB relative to S9
var strengthCal = caps.CalTable{
	{Raw: 0, Value: -54},
	{Raw: 12, Value: -48},
	{Raw: 27, Value: -42},
	{Raw: 40, Value: -36},
	{Raw: 55, Value: -30},
	{Raw: 65, Value: -24},
	{Raw: 80, Value: -18},
	{Raw: 95, Value: -12},
	{Raw: 112, Value: -6},
	{Raw: 130, Value: 0},
	{Raw: 150, Value: 10},
	{Raw: 172, Value: 20},
	{Raw: 190, Value: 30},
	{Raw: 220, Value: 40},
	{Raw: 240, Value: 50},
	{Raw: 255, Value: 60},
}

var rfPowerMeterCal = caps.CalTable{
	{Raw: 0, Value: 0},
	{Raw: 100, Value: 100},
}

// FT891 describes the Yaesu FT-891 HF/50 MHz transceiver
func FT891() *caps.Descriptor {
	modes := []string{
		string(driver.ModeLSB), string(driver.ModeUSB), string(driver.ModeCW), string(driver.ModeCWR),
		string(driver.ModeAM), string(driver.ModeAMN), string(driver.ModeFM), string(driver.ModeFMN),
		string(driver.ModeRTTY), string(driver.ModeRTTYR),
		string(driver.ModePKTLSB), string(driver.ModePKTUSB), string(driver.ModePKTFM),
	}

	return &caps.Descriptor{
		Brand:        model.BrandYaesu,
		Model:        "FT-891",
		DeviceType:   model.DeviceTypeRig,
		Manufacturer: "Yaesu",
		Version:      "0.1",
		Status:       caps.StatusBeta,
		Port:         model.ConnectionTypeSerial,
		Serial: caps.SerialCaps{
			RateMin:   4800,
			RateMax:   38400,
			DataBits:  8,
			StopBits:  1,
			Parity:    "NONE",
			Handshake: "NONE",
		},
		Timing: caps.Timing{
			WriteDelay:     0,
			PostWriteDelay: 50 * time.Millisecond,
			Timeout:        2 * time.Second,
			Retry:          3,
		},
		Rig: &caps.RigCaps{
			MinFreq:    30e3,
			MaxFreq:    56e6,
			Terminator: ';',
			MaxReply:   32,
			Modes:      modes,
			GetLevels: []string{
				string(driver.LevelStrength), string(driver.LevelRawStrength), string(driver.LevelRFPower),
				string(driver.LevelRFPowerMeter), string(driver.LevelAF), string(driver.LevelSquelch),
			},
			SetLevels: []string{
				string(driver.LevelRFPower), string(driver.LevelAF), string(driver.LevelSquelch),
			},
			StrengthCal:     strengthCal,
			RFPowerMeterCal: rfPowerMeterCal,
		},
		Capabilities: []model.Capability{
			model.CapabilitySetFrequency,
			model.CapabilityGetFrequency,
			model.CapabilitySetMode,
			model.CapabilityGetMode,
			model.CapabilitySetLevel,
			model.CapabilityGetLevel,
			model.CapabilityPTT,
		},
	}
}
