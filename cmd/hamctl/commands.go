package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"hamlink/internal/model"
	"hamlink/pkg/driver"
)

// shellCommand maps a rotctl/rigctl style command onto a logical operation
type shellCommand struct {
	Name        string
	Long        string
	Family      model.DeviceType
	Operation   model.OperationType
	Args        []string
	Out         []string
	Description string
}

var shellCommands = []shellCommand{
	{"P", "set_pos", model.DeviceTypeRotator, model.OperationTypeSetPosition, []string{"azimuth", "elevation"}, nil, "point to azimuth and elevation"},
	{"p", "get_pos", model.DeviceTypeRotator, model.OperationTypeGetPosition, nil, []string{"azimuth", "elevation"}, "read position (one axis per call)"},
	{"S", "stop", model.DeviceTypeRotator, model.OperationTypeStop, nil, nil, "stop motion"},
	{"K", "park", model.DeviceTypeRotator, model.OperationTypePark, nil, nil, "move to 0/0"},
	{"M", "move", model.DeviceTypeRotator, model.OperationTypeMove, []string{"direction", "speed"}, nil, "move UP|DOWN|LEFT|RIGHT at speed"},
	{"R", "reset", model.DeviceTypeRotator, model.OperationTypeReset, []string{"mode"}, nil, "reset (ALL)"},

	{"F", "set_freq", model.DeviceTypeRig, model.OperationTypeSetFrequency, []string{"frequency"}, nil, "tune to Hz"},
	{"f", "get_freq", model.DeviceTypeRig, model.OperationTypeGetFrequency, nil, []string{"frequency"}, "read frequency in Hz"},
	{"M", "set_mode", model.DeviceTypeRig, model.OperationTypeSetMode, []string{"mode"}, nil, "set mode (USB, LSB, CW, ...)"},
	{"m", "get_mode", model.DeviceTypeRig, model.OperationTypeGetMode, nil, []string{"mode"}, "read mode"},
	{"L", "set_level", model.DeviceTypeRig, model.OperationTypeSetLevel, []string{"level", "value"}, nil, "set level to 0..1"},
	{"l", "get_level", model.DeviceTypeRig, model.OperationTypeGetLevel, []string{"level"}, []string{"value"}, "read level"},
	{"T", "set_ptt", model.DeviceTypeRig, model.OperationTypeSetPTT, []string{"ptt"}, nil, "key (1) or unkey (0)"},
	{"t", "get_ptt", model.DeviceTypeRig, model.OperationTypeGetPTT, nil, []string{"ptt"}, "read PTT"},
}

// findCommand resolves a short or long command name for a device family
func findCommand(family model.DeviceType, name string) (*shellCommand, bool) {
	for i := range shellCommands {
		c := &shellCommands[i]
		if c.Family != family {
			continue
		}
		if c.Name == name || strings.EqualFold(c.Long, name) {
			return c, true
		}
	}
	return nil, false
}

// commandNames lists the long names available for a family, for completion
func commandNames(family model.DeviceType) []string {
	var names []string
	for _, c := range shellCommands {
		if c.Family == family {
			names = append(names, c.Long)
		}
	}
	sort.Strings(names)
	return names
}

func printHelp(w io.Writer, family model.DeviceType) {
	for _, c := range shellCommands {
		if c.Family != family {
			continue
		}
		usage := c.Name + " " + c.Long
		for _, a := range c.Args {
			usage += " <" + a + ">"
		}
		fmt.Fprintf(w, "  %-32s %s\n", usage, c.Description)
	}
	fmt.Fprintf(w, "  %-32s %s\n", "q quit", "leave the shell")
}

// controller runs shell commands against one open device
type controller struct {
	drv       driver.DeviceDriver
	sessionID uuid.UUID
	family    model.DeviceType
	out       io.Writer
}

// run executes one tokenized command line and prints the result values one
// per line
func (c *controller) run(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	cmd, ok := findCommand(c.family, tokens[0])
	if !ok {
		return fmt.Errorf("unknown command %q", tokens[0])
	}

	args := tokens[1:]
	if len(args) != len(cmd.Args) {
		// reset's mode is optional
		if !(cmd.Operation == model.OperationTypeReset && len(args) == 0) {
			return fmt.Errorf("usage: %s %s", cmd.Long, strings.Join(cmd.Args, " "))
		}
	}

	data := model.JSONObject{}
	for i, a := range args {
		if cmd.Args[i] == "level" {
			a = strings.ToUpper(a)
		}
		data[cmd.Args[i]] = a
	}

	result, err := c.drv.ExecuteOperation(ctx, model.NewOperation(c.sessionID, cmd.Operation, data))
	if err != nil {
		return err
	}

	for _, key := range cmd.Out {
		fmt.Fprintln(c.out, formatValue(result.Data[key]))
	}
	return nil
}

func formatValue(v interface{}) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		if x {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(x)
	}
}
