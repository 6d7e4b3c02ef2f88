// internal/discovery/serial/database.go
package serial

import (
	"strings"

	"hamlink/internal/model"
)

// BridgeInfo describes a known USB serial bridge
type BridgeInfo struct {
	Name       string
	Brand      model.DeviceBrand
	Model      string
	DeviceType model.DeviceType
	Confidence float64
}

type usbID struct {
	vid string
	pid string
}

// Radios with a built-in bridge identify the model; generic adapters only
// tell us a serial port is there.
var bridges = map[usbID]BridgeInfo{
	{"10C4", "EA70"}: {
		Name:       "Silicon Labs CP2105 (Yaesu built-in)",
		Brand:      model.BrandYaesu,
		Model:      "FT-891",
		DeviceType: model.DeviceTypeRig,
		Confidence: 0.6,
	},
	{"10C4", "EA60"}: {Name: "Silicon Labs CP210x", Confidence: 0.3},
	{"0403", "6001"}: {Name: "FTDI FT232R", Confidence: 0.3},
	{"0403", "6015"}: {Name: "FTDI FT231X", Confidence: 0.3},
	{"067B", "2303"}: {Name: "Prolific PL2303", Confidence: 0.3},
	{"1A86", "7523"}: {Name: "QinHeng CH340", Confidence: 0.3},
}

// LookupBridge returns what is known about a USB VID/PID pair
func LookupBridge(vid, pid string) (BridgeInfo, bool) {
	info, ok := bridges[usbID{strings.ToUpper(vid), strings.ToUpper(pid)}]
	return info, ok
}
