// internal/protocol/factory.go
package protocol

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"hamlink/internal/caps"
	"hamlink/internal/model"
)

var standardBaudRates = []int{1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200}

// CreateTransport builds a transport for desc from a loosely typed config.
// Missing settings fall back to the descriptor's serial capabilities.
func CreateTransport(desc *caps.Descriptor, config map[string]interface{}, logger *zap.Logger) (Transport, error) {
	switch desc.Port {
	case model.ConnectionTypeSerial:
		serialConfig, err := ParseSerialConfig(desc, config)
		if err != nil {
			return nil, err
		}
		logger.Info("Creating serial transport",
			zap.String("port", serialConfig.Port),
			zap.Int("baud_rate", serialConfig.BaudRate),
			zap.String("model", desc.Model),
		)
		return NewSerialConnection(serialConfig, logger), nil
	default:
		return nil, fmt.Errorf("unsupported connection type: %s", desc.Port)
	}
}

// ParseSerialConfig validates config against desc and fills defaults
func ParseSerialConfig(desc *caps.Descriptor, config map[string]interface{}) (*SerialConfig, error) {
	if err := ValidateConfig(desc, config); err != nil {
		return nil, err
	}

	serialConfig := &SerialConfig{
		Port:     config["port"].(string),
		BaudRate: desc.Serial.RateMin,
		DataBits: desc.Serial.DataBits,
		StopBits: desc.Serial.StopBits,
		Parity:   strings.ToLower(desc.Serial.Parity),
		Timeout:  desc.Timing.Timeout,
	}

	if v, ok := intValue(config["baud_rate"]); ok {
		serialConfig.BaudRate = v
	}
	if v, ok := intValue(config["data_bits"]); ok {
		serialConfig.DataBits = v
	}
	if v, ok := intValue(config["stop_bits"]); ok {
		serialConfig.StopBits = v
	}
	if parity, ok := config["parity"].(string); ok && parity != "" {
		serialConfig.Parity = strings.ToLower(parity)
	}
	if timeout, ok := config["timeout"].(string); ok {
		if dur, err := time.ParseDuration(timeout); err == nil {
			serialConfig.Timeout = dur
		}
	}

	return serialConfig, nil
}

// ValidateConfig validates a serial configuration against a descriptor
func ValidateConfig(desc *caps.Descriptor, config map[string]interface{}) error {
	if port, ok := config["port"].(string); !ok || port == "" {
		return fmt.Errorf("serial port is required")
	}

	if raw, ok := config["baud_rate"]; ok {
		rate, ok := intValue(raw)
		if !ok {
			return fmt.Errorf("invalid baud_rate type %T", raw)
		}
		if !isStandardBaudRate(rate) {
			return fmt.Errorf("invalid baud rate: %d", rate)
		}
		if !desc.SupportsBaudRate(rate) {
			return fmt.Errorf("baud rate %d outside %s range %d-%d",
				rate, desc.Model, desc.Serial.RateMin, desc.Serial.RateMax)
		}
	}

	if raw, ok := config["data_bits"]; ok {
		bits, ok := intValue(raw)
		if !ok || bits < 5 || bits > 8 {
			return fmt.Errorf("invalid data_bits: %v", raw)
		}
	}

	if raw, ok := config["stop_bits"]; ok {
		bits, ok := intValue(raw)
		if !ok || (bits != 1 && bits != 2) {
			return fmt.Errorf("invalid stop_bits: %v", raw)
		}
	}

	if raw, ok := config["parity"]; ok {
		parity, _ := raw.(string)
		switch strings.ToLower(parity) {
		case "", "none", "odd", "even", "mark", "space":
		default:
			return fmt.Errorf("invalid parity: %v", raw)
		}
	}

	if raw, ok := config["timeout"]; ok {
		s, _ := raw.(string)
		if _, err := time.ParseDuration(s); err != nil {
			return fmt.Errorf("invalid timeout: %v", raw)
		}
	}

	return nil
}

func isStandardBaudRate(rate int) bool {
	for _, r := range standardBaudRates {
		if r == rate {
			return true
		}
	}
	return false
}

// intValue accepts the numeric shapes produced by JSON and YAML decoding
func intValue(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case uint8:
		return int(n), true
	default:
		return 0, false
	}
}
