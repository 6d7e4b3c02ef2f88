// Package dispatch maps logical operations onto the device family
// interfaces of pkg/driver.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"hamlink/internal/model"
	"hamlink/pkg/driver"
)

type handlerFunc func(ctx context.Context, drv driver.DeviceDriver, args model.JSONObject) (map[string]interface{}, error)

type entry struct {
	capability model.Capability
	handle     handlerFunc
}

var table = map[model.OperationType]entry{
	model.OperationTypeSetPosition: {model.CapabilitySetPosition, rotator(setPosition)},
	model.OperationTypeGetPosition: {model.CapabilityGetPosition, rotator(getPosition)},
	model.OperationTypeStop:        {model.CapabilityStop, rotator(stop)},
	model.OperationTypePark:        {model.CapabilityPark, rotator(park)},
	model.OperationTypeMove:        {model.CapabilityMove, rotator(move)},
	model.OperationTypeReset:       {model.CapabilityReset, rotator(reset)},

	model.OperationTypeSetFrequency: {model.CapabilitySetFrequency, rig(setFrequency)},
	model.OperationTypeGetFrequency: {model.CapabilityGetFrequency, rig(getFrequency)},
	model.OperationTypeSetMode:      {model.CapabilitySetMode, rig(setMode)},
	model.OperationTypeGetMode:      {model.CapabilityGetMode, rig(getMode)},
	model.OperationTypeSetLevel:     {model.CapabilitySetLevel, rig(setLevel)},
	model.OperationTypeGetLevel:     {model.CapabilityGetLevel, rig(getLevel)},
	model.OperationTypeSetPTT:       {model.CapabilityPTT, rig(setPTT)},
	model.OperationTypeGetPTT:       {model.CapabilityPTT, rig(getPTT)},
}

// Execute resolves op to the driver's family method and runs it
func Execute(ctx context.Context, drv driver.DeviceDriver, op *model.DeviceOperation) (*driver.OperationResult, error) {
	e, ok := table[op.OperationType]
	if !ok {
		return nil, fmt.Errorf("operation %s: %w", op.OperationType, driver.ErrNotSupported)
	}
	if !hasCapability(drv.GetCapabilities(), e.capability) {
		return nil, fmt.Errorf("operation %s needs %s: %w", op.OperationType, e.capability, driver.ErrNotSupported)
	}

	start := time.Now()
	data, err := e.handle(ctx, drv, op.OperationData)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op.OperationType, err)
	}
	duration := time.Since(start)

	return &driver.OperationResult{
		Success:   true,
		Data:      data,
		Duration:  duration.String(),
		Timestamp: time.Now(),
	}, nil
}

// Operations lists the operation types a capability set enables
func Operations(capabilities []model.Capability) []model.OperationType {
	var out []model.OperationType
	for op, e := range table {
		if hasCapability(capabilities, e.capability) {
			out = append(out, op)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func hasCapability(list []model.Capability, c model.Capability) bool {
	for _, have := range list {
		if have == c {
			return true
		}
	}
	return false
}

func rotator(fn func(context.Context, driver.RotatorDriver, model.JSONObject) (map[string]interface{}, error)) handlerFunc {
	return func(ctx context.Context, drv driver.DeviceDriver, args model.JSONObject) (map[string]interface{}, error) {
		r, ok := drv.(driver.RotatorDriver)
		if !ok {
			return nil, fmt.Errorf("not a rotator: %w", driver.ErrNotSupported)
		}
		return fn(ctx, r, args)
	}
}

func rig(fn func(context.Context, driver.RigDriver, model.JSONObject) (map[string]interface{}, error)) handlerFunc {
	return func(ctx context.Context, drv driver.DeviceDriver, args model.JSONObject) (map[string]interface{}, error) {
		r, ok := drv.(driver.RigDriver)
		if !ok {
			return nil, fmt.Errorf("not a rig: %w", driver.ErrNotSupported)
		}
		return fn(ctx, r, args)
	}
}

// Rotator handlers

func setPosition(ctx context.Context, r driver.RotatorDriver, args model.JSONObject) (map[string]interface{}, error) {
	az, err := Float(args, "azimuth")
	if err != nil {
		return nil, err
	}
	el, err := Float(args, "elevation")
	if err != nil {
		return nil, err
	}
	if err := r.SetPosition(ctx, az, el); err != nil {
		return nil, err
	}
	return map[string]interface{}{"azimuth": az, "elevation": el}, nil
}

func getPosition(ctx context.Context, r driver.RotatorDriver, _ model.JSONObject) (map[string]interface{}, error) {
	pos, err := r.GetPosition(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"azimuth": pos.Azimuth, "elevation": pos.Elevation}, nil
}

func stop(ctx context.Context, r driver.RotatorDriver, _ model.JSONObject) (map[string]interface{}, error) {
	return nil, r.Stop(ctx)
}

func park(ctx context.Context, r driver.RotatorDriver, _ model.JSONObject) (map[string]interface{}, error) {
	return nil, r.Park(ctx)
}

func move(ctx context.Context, r driver.RotatorDriver, args model.JSONObject) (map[string]interface{}, error) {
	s, err := String(args, "direction")
	if err != nil {
		return nil, err
	}
	dir, err := driver.ParseMoveDirection(s)
	if err != nil {
		return nil, err
	}
	speed, err := Int(args, "speed")
	if err != nil {
		return nil, err
	}
	if err := r.Move(ctx, dir, speed); err != nil {
		return nil, err
	}
	return map[string]interface{}{"direction": string(dir), "speed": speed}, nil
}

func reset(ctx context.Context, r driver.RotatorDriver, args model.JSONObject) (map[string]interface{}, error) {
	mode := string(driver.ResetAll)
	if _, ok := args["mode"]; ok {
		s, err := String(args, "mode")
		if err != nil {
			return nil, err
		}
		mode = s
	}
	rt, err := driver.ParseResetType(mode)
	if err != nil {
		return nil, err
	}
	if err := r.Reset(ctx, rt); err != nil {
		return nil, err
	}
	return map[string]interface{}{"mode": string(rt)}, nil
}

// Rig handlers

func setFrequency(ctx context.Context, r driver.RigDriver, args model.JSONObject) (map[string]interface{}, error) {
	hz, err := Float(args, "frequency")
	if err != nil {
		return nil, err
	}
	if err := r.SetFrequency(ctx, hz); err != nil {
		return nil, err
	}
	return map[string]interface{}{"frequency": hz}, nil
}

func getFrequency(ctx context.Context, r driver.RigDriver, _ model.JSONObject) (map[string]interface{}, error) {
	hz, err := r.GetFrequency(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"frequency": hz}, nil
}

func setMode(ctx context.Context, r driver.RigDriver, args model.JSONObject) (map[string]interface{}, error) {
	mode, err := String(args, "mode")
	if err != nil {
		return nil, err
	}
	if err := r.SetMode(ctx, driver.Mode(mode)); err != nil {
		return nil, err
	}
	return map[string]interface{}{"mode": mode}, nil
}

func getMode(ctx context.Context, r driver.RigDriver, _ model.JSONObject) (map[string]interface{}, error) {
	mode, err := r.GetMode(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"mode": string(mode)}, nil
}

func setLevel(ctx context.Context, r driver.RigDriver, args model.JSONObject) (map[string]interface{}, error) {
	level, err := String(args, "level")
	if err != nil {
		return nil, err
	}
	value, err := Float(args, "value")
	if err != nil {
		return nil, err
	}
	if err := r.SetLevel(ctx, driver.Level(level), value); err != nil {
		return nil, err
	}
	return map[string]interface{}{"level": level, "value": value}, nil
}

func getLevel(ctx context.Context, r driver.RigDriver, args model.JSONObject) (map[string]interface{}, error) {
	level, err := String(args, "level")
	if err != nil {
		return nil, err
	}
	value, err := r.GetLevel(ctx, driver.Level(level))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"level": level, "value": value}, nil
}

func setPTT(ctx context.Context, r driver.RigDriver, args model.JSONObject) (map[string]interface{}, error) {
	on, err := Bool(args, "ptt")
	if err != nil {
		return nil, err
	}
	if err := r.SetPTT(ctx, on); err != nil {
		return nil, err
	}
	return map[string]interface{}{"ptt": on}, nil
}

func getPTT(ctx context.Context, r driver.RigDriver, _ model.JSONObject) (map[string]interface{}, error) {
	on, err := r.GetPTT(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"ptt": on}, nil
}

// Argument helpers accept the shapes produced by JSON decoding, YAML
// decoding and direct Go callers.

// Float reads a numeric argument
func Float(args model.JSONObject, key string) (float64, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("missing %q: %w", key, driver.ErrInvalidArgument)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%q: %v: %w", key, err, driver.ErrInvalidArgument)
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number: %w", key, driver.ErrInvalidArgument)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%q has type %T: %w", key, v, driver.ErrInvalidArgument)
	}
}

// Int reads an integral argument
func Int(args model.JSONObject, key string) (int, error) {
	f, err := Float(args, key)
	if err != nil {
		return 0, err
	}
	if f != float64(int(f)) {
		return 0, fmt.Errorf("%q must be an integer: %w", key, driver.ErrInvalidArgument)
	}
	return int(f), nil
}

// String reads a string argument
func String(args model.JSONObject, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing %q: %w", key, driver.ErrInvalidArgument)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%q has type %T: %w", key, v, driver.ErrInvalidArgument)
	}
	return s, nil
}

// Bool reads a boolean argument
func Bool(args model.JSONObject, key string) (bool, error) {
	v, ok := args[key]
	if !ok {
		return false, fmt.Errorf("missing %q: %w", key, driver.ErrInvalidArgument)
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return false, fmt.Errorf("%q is not a boolean: %w", key, driver.ErrInvalidArgument)
		}
		return parsed, nil
	default:
		return false, fmt.Errorf("%q has type %T: %w", key, v, driver.ErrInvalidArgument)
	}
}
