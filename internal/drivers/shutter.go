package drivers

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/boguslaw-wojcik/zwave-bridge/internal/device"
	"github.com/boguslaw-wojcik/zwave-bridge/internal/infrastructure/logging"
	"github.com/boguslaw-wojcik/zwave-bridge/internal/state"
	"github.com/boguslaw-wojcik/zwave-bridge/internal/supervision"
	"github.com/boguslaw-wojcik/zwave-bridge/internal/zwave"
)

// shutterParameters is the roller shutter configuration surface.
// Parameter 29 forces a travel calibration and stays out of bulk
// pushes. Parameter 12 exercises the unsigned wrap: externally 0-65535
// centiseconds, negative on the wire above the signed midpoint.
var shutterParameters = []Parameter{
	{Number: 3, Size: 1, Format: FormatUnsigned, Title: "Position reports type", Default: 0, Min: 0, Max: 1},
	{Number: 10, Size: 1, Format: FormatUnsigned, Title: "Operating mode", Default: 0, Min: 0, Max: 4},
	{Number: 12, Size: 2, Format: FormatUnsigned, Title: "Motor stop delay (10ms)", Default: 150, Min: 0, Max: 65535},
	{Number: 18, Size: 1, Format: FormatUnsigned, Title: "Slats full-turn position", Default: 0, Min: 0, Max: 90},
	{Number: 29, Size: 1, Format: FormatUnsigned, Title: "Forced calibration", Default: 0, Min: 0, Max: 1, Hidden: true},
}

const shutterCalibrationParameter byte = 29

// Shutter drives a continuous-position roller shutter with power and
// energy metering.
type Shutter struct {
	id         string
	endpoint   byte
	supervised bool

	cmd       Commander
	emitter   *state.Emitter
	telemetry TelemetryWriter
	logger    *logging.Logger

	// policy maps supervision statuses to optimistic inference rules
	// for this profile.
	policy state.Policy

	mu          sync.Mutex
	lastValue   byte
	calibrating bool
}

// NewShutter builds a shutter driver bound to a device record. A nil
// telemetry writer disables meter forwarding.
func NewShutter(dev *device.Device, cmd Commander, emitter *state.Emitter, telemetry TelemetryWriter, logger *logging.Logger) *Shutter {
	if logger == nil {
		logger = logging.Default()
	}
	return &Shutter{
		id:         dev.ID,
		endpoint:   dev.Endpoint,
		supervised: dev.Supervised,
		cmd:        cmd,
		emitter:    emitter,
		telemetry:  telemetry,
		logger:     logger.With("device_id", dev.ID, "profile", device.ProfileShutter),
		policy:     state.DefaultPolicy(),
		lastValue:  state.PositionMoving,
	}
}

func (s *Shutter) DeviceID() string { return s.id }

func (s *Shutter) Profile() string { return device.ProfileShutter }

func (s *Shutter) Versions() zwave.VersionTable {
	return zwave.VersionTable{
		zwave.ClassSwitchMultilevel: 4,
		zwave.ClassConfiguration:    1,
		zwave.ClassMeter:            3,
		zwave.ClassSupervision:      1,
	}
}

func (s *Shutter) Execute(ctx context.Context, cmd Command) error {
	switch cmd.Action {
	case ActionOpen:
		return s.setLevel(ctx, zwave.LevelMax)
	case ActionClose:
		return s.setLevel(ctx, zwave.LevelMin)
	case ActionSetPosition:
		return s.setLevel(ctx, clampPosition(cmd.Position))
	case ActionStartPositionChange:
		return s.startPositionChange(ctx, cmd.Direction)
	case ActionStopPositionChange:
		return s.stopPositionChange(ctx)
	case ActionRefresh:
		if err := s.cmd.SendUnsupervised(ctx, s.id, &zwave.SwitchMultilevelGet{}, s.endpoint, true); err != nil {
			return err
		}
		return s.cmd.SendUnsupervised(ctx, s.id, &zwave.MeterGet{Scale: 2}, s.endpoint, true)
	case ActionConfigure:
		cmds, err := buildPush(shutterParameters, cmd.Overrides)
		if err != nil {
			return err
		}
		return s.pushConfiguration(ctx, cmds)
	case ActionCalibrate:
		s.mu.Lock()
		s.calibrating = true
		s.mu.Unlock()
		s.emitCalibration("calibrating")
		return s.setParameter(ctx, shutterCalibrationParameter, 1)
	case ActionSetParameter:
		return s.setParameter(ctx, cmd.Parameter, cmd.Value)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, cmd.Action)
	}
}

func (s *Shutter) setLevel(ctx context.Context, level byte) error {
	set := &zwave.SwitchMultilevelSet{Value: level}
	if !s.supervised {
		return s.cmd.SendUnsupervised(ctx, s.id, set, s.endpoint, true)
	}

	s.mu.Lock()
	saved := s.lastValue
	s.mu.Unlock()

	return s.cmd.Send(ctx, s.id, set, s.endpoint, true, func(r supervision.Result) {
		if r.Err != nil {
			s.logger.Warn("position command presumed lost", "level", level, "error", r.Err)
			return
		}
		inferred, ok := state.Optimistic(s.policy, state.ShadeInfer(), r.Status, saved, level)
		if !ok {
			s.logger.Warn("position command not executed", "level", level, "status", r.Status)
			return
		}
		if r.Status == zwave.SupervisionStatusSuccess {
			s.mu.Lock()
			s.lastValue = level
			s.mu.Unlock()
			s.emitShade(inferred, level)
			return
		}
		s.emitShade(inferred, saved)
	})
}

func (s *Shutter) startPositionChange(ctx context.Context, direction string) error {
	var up bool
	switch direction {
	case DirectionOpen:
		up = true
	case DirectionClose:
		up = false
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDirection, direction)
	}
	slc := &zwave.SwitchMultilevelStartLevelChange{Up: up, IgnoreStartLevel: true}
	if !s.supervised {
		return s.cmd.SendUnsupervised(ctx, s.id, slc, s.endpoint, true)
	}
	return s.cmd.Send(ctx, s.id, slc, s.endpoint, true, s.logResult("start position change"))
}

func (s *Shutter) stopPositionChange(ctx context.Context) error {
	stop := &zwave.SwitchMultilevelStopLevelChange{}
	var err error
	if s.supervised {
		err = s.cmd.Send(ctx, s.id, stop, s.endpoint, true, s.logResult("stop position change"))
	} else {
		err = s.cmd.SendUnsupervised(ctx, s.id, stop, s.endpoint, true)
	}
	if err != nil {
		return err
	}
	return s.cmd.SendUnsupervised(ctx, s.id, &zwave.SwitchMultilevelGet{}, s.endpoint, true)
}

func (s *Shutter) setParameter(ctx context.Context, number byte, value int64) error {
	p, ok := find(shutterParameters, number)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownParameter, number)
	}
	set, err := p.buildSet(value)
	if err != nil {
		return err
	}
	return s.pushConfiguration(ctx, []zwave.Command{set, p.buildGet()})
}

func (s *Shutter) pushConfiguration(ctx context.Context, cmds []zwave.Command) error {
	for _, c := range cmds {
		var err error
		if _, isSet := c.(*zwave.ConfigurationSet); isSet && s.supervised {
			err = s.cmd.Send(ctx, s.id, c, s.endpoint, true, s.logResult("configuration write"))
		} else {
			err = s.cmd.SendUnsupervised(ctx, s.id, c, s.endpoint, true)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Shutter) HandleReport(_ context.Context, c zwave.Command) {
	switch rep := c.(type) {
	case *zwave.SwitchMultilevelReport:
		target := rep.TargetValue
		if !rep.HasTarget {
			target = rep.Value
		}
		s.mu.Lock()
		s.lastValue = rep.Value
		calibrating := s.calibrating
		if calibrating && rep.Value <= zwave.LevelMax {
			// First in-range report after a forced calibration means
			// travel limits are learned.
			s.calibrating = false
		}
		s.mu.Unlock()

		inferred := state.InferShade(rep.Value, target)
		if calibrating && rep.Value <= zwave.LevelMax {
			s.emitCalibration("calibrated")
		}
		s.emitShade(inferred, rep.Value)
	case *zwave.MeterReport:
		s.handleMeter(rep)
	case *zwave.ConfigurationReport:
		p, ok := find(shutterParameters, rep.Parameter)
		if !ok {
			s.logger.Debug("report for unknown parameter", "parameter", rep.Parameter, "value", rep.Value)
			return
		}
		s.logger.Info("configuration read back",
			"parameter", rep.Parameter,
			"title", p.Title,
			"value", p.DecodeExternal(rep.Value),
		)
	default:
		s.logger.Debug("unhandled command",
			"class", fmt.Sprintf("%#02x", c.CommandClassID()),
			"command", fmt.Sprintf("%#02x", c.CommandID()),
		)
	}
}

// handleMeter forwards meter readings to state and telemetry. Electric
// meter scale 2 is instantaneous power in W, scale 0 accumulated
// energy in kWh.
func (s *Shutter) handleMeter(rep *zwave.MeterReport) {
	switch rep.Scale {
	case 2:
		s.emitter.Emit(state.Event{
			DeviceID:  s.id,
			Attribute: "power",
			Value:     strconv.FormatFloat(rep.Value, 'f', -1, 64),
			Unit:      "W",
		}, false)
		if s.telemetry != nil {
			s.telemetry.WriteEnergyReading(s.id, rep.Value, 0)
		}
	case 0:
		s.emitter.Emit(state.Event{
			DeviceID:  s.id,
			Attribute: "energy",
			Value:     strconv.FormatFloat(rep.Value, 'f', -1, 64),
			Unit:      "kWh",
		}, false)
		if s.telemetry != nil {
			s.telemetry.WriteEnergyReading(s.id, 0, rep.Value)
		}
	default:
		s.logger.Debug("meter report with unhandled scale", "scale", rep.Scale, "value", rep.Value)
	}
}

// emitShade publishes the shade state and, for in-range values, the
// numeric position.
func (s *Shutter) emitShade(st state.State, rawValue byte) {
	s.emitter.Emit(state.Event{DeviceID: s.id, Attribute: "shade", Value: string(st)}, false)
	if rawValue <= zwave.LevelMax {
		s.emitter.Emit(state.Event{
			DeviceID:  s.id,
			Attribute: "position",
			Value:     strconv.Itoa(int(rawValue)),
		}, false)
	}
}

func (s *Shutter) emitCalibration(status string) {
	s.emitter.Emit(state.Event{DeviceID: s.id, Attribute: "calibration", Value: status}, false)
}

func (s *Shutter) logResult(what string) supervision.Callback {
	return func(r supervision.Result) {
		if r.Err != nil {
			s.logger.Warn(what+" presumed lost", "error", r.Err)
			return
		}
		s.logger.Debug(what+" acknowledged", "status", r.Status)
	}
}
