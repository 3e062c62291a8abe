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

// gateParameters is the configuration surface of the barrier
// controller. Parameter 78 triggers a forced travel calibration and is
// excluded from bulk pushes.
var gateParameters = []Parameter{
	{Number: 1, Size: 1, Format: FormatUnsigned, Title: "State after power failure", Default: 0, Min: 0, Max: 1},
	{Number: 4, Size: 2, Format: FormatUnsigned, Title: "Auto-close delay (seconds)", Default: 0, Min: 0, Max: 600},
	{Number: 7, Size: 1, Format: FormatSigned, Title: "Closed position offset", Default: 0, Min: -128, Max: 127},
	{Number: 78, Size: 1, Format: FormatUnsigned, Title: "Forced calibration", Default: 0, Min: 0, Max: 1, Hidden: true},
}

const gateCalibrationParameter byte = 78

// Gate drives a barrier controller: discrete closed/open/moving
// positions, a door state vocabulary and a derived contact projection.
type Gate struct {
	id            string
	endpoint      byte
	supervised    bool
	reportStopped bool

	cmd     Commander
	emitter *state.Emitter
	logger  *logging.Logger

	// policy maps supervision statuses to optimistic inference rules
	// for this profile.
	policy state.Policy

	mu        sync.Mutex
	lastValue byte
}

// NewGate builds a gate driver bound to a device record.
func NewGate(dev *device.Device, cmd Commander, emitter *state.Emitter, logger *logging.Logger) *Gate {
	if logger == nil {
		logger = logging.Default()
	}
	return &Gate{
		id:            dev.ID,
		endpoint:      dev.Endpoint,
		supervised:    dev.Supervised,
		reportStopped: dev.ReportStopped,
		cmd:           cmd,
		emitter:       emitter,
		logger:        logger.With("device_id", dev.ID, "profile", device.ProfileGate),
		policy:        state.DefaultPolicy(),
		lastValue:     state.PositionMoving,
	}
}

func (g *Gate) DeviceID() string { return g.id }

func (g *Gate) Profile() string { return device.ProfileGate }

func (g *Gate) Versions() zwave.VersionTable {
	return zwave.VersionTable{
		zwave.ClassSwitchMultilevel: 4,
		zwave.ClassConfiguration:    1,
		zwave.ClassNotification:     5,
		zwave.ClassSupervision:      1,
	}
}

func (g *Gate) Execute(ctx context.Context, cmd Command) error {
	switch cmd.Action {
	case ActionOpen:
		return g.setLevel(ctx, zwave.LevelMax)
	case ActionClose:
		return g.setLevel(ctx, zwave.LevelMin)
	case ActionSetPosition:
		return g.setLevel(ctx, clampPosition(cmd.Position))
	case ActionStartPositionChange:
		return g.startPositionChange(ctx, cmd.Direction)
	case ActionStopPositionChange:
		return g.stopPositionChange(ctx)
	case ActionRefresh:
		return g.cmd.SendUnsupervised(ctx, g.id, &zwave.SwitchMultilevelGet{}, g.endpoint, true)
	case ActionConfigure:
		return g.configure(ctx, cmd.Overrides)
	case ActionCalibrate:
		return g.setParameter(ctx, gateCalibrationParameter, 1)
	case ActionSetParameter:
		return g.setParameter(ctx, cmd.Parameter, cmd.Value)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, cmd.Action)
	}
}

// setLevel issues the position command. Under supervision the
// acknowledgement drives an optimistic state update against the saved
// pre-command position, so the door state flips to opening/closing
// without waiting for a device report.
func (g *Gate) setLevel(ctx context.Context, level byte) error {
	set := &zwave.SwitchMultilevelSet{Value: level}
	if !g.supervised {
		return g.cmd.SendUnsupervised(ctx, g.id, set, g.endpoint, true)
	}

	g.mu.Lock()
	saved := g.lastValue
	g.mu.Unlock()

	return g.cmd.Send(ctx, g.id, set, g.endpoint, true, func(r supervision.Result) {
		if r.Err != nil {
			g.logger.Warn("position command presumed lost", "level", level, "error", r.Err)
			return
		}
		inferred, ok := state.Optimistic(g.policy, state.GateInfer(g.reportStopped), r.Status, saved, level)
		if !ok {
			g.logger.Warn("position command not executed", "level", level, "status", r.Status)
			return
		}
		if r.Status == zwave.SupervisionStatusSuccess {
			g.mu.Lock()
			g.lastValue = level
			g.mu.Unlock()
		}
		g.emitDoor(inferred)
	})
}

func (g *Gate) startPositionChange(ctx context.Context, direction string) error {
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
	if !g.supervised {
		return g.cmd.SendUnsupervised(ctx, g.id, slc, g.endpoint, true)
	}
	return g.cmd.Send(ctx, g.id, slc, g.endpoint, true, g.logResult("start position change"))
}

func (g *Gate) stopPositionChange(ctx context.Context) error {
	stop := &zwave.SwitchMultilevelStopLevelChange{}
	var err error
	if g.supervised {
		err = g.cmd.Send(ctx, g.id, stop, g.endpoint, true, g.logResult("stop position change"))
	} else {
		err = g.cmd.SendUnsupervised(ctx, g.id, stop, g.endpoint, true)
	}
	if err != nil {
		return err
	}
	// Read back where the motor halted.
	return g.cmd.SendUnsupervised(ctx, g.id, &zwave.SwitchMultilevelGet{}, g.endpoint, true)
}

func (g *Gate) configure(ctx context.Context, overrides map[byte]int64) error {
	cmds, err := buildPush(gateParameters, overrides)
	if err != nil {
		return err
	}
	return g.pushConfiguration(ctx, cmds)
}

func (g *Gate) setParameter(ctx context.Context, number byte, value int64) error {
	p, ok := find(gateParameters, number)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownParameter, number)
	}
	set, err := p.buildSet(value)
	if err != nil {
		return err
	}
	return g.pushConfiguration(ctx, []zwave.Command{set, p.buildGet()})
}

// pushConfiguration sends writes supervised (when negotiated) and
// read-backs plain; every write is reconciled against its report.
func (g *Gate) pushConfiguration(ctx context.Context, cmds []zwave.Command) error {
	for _, c := range cmds {
		var err error
		if _, isSet := c.(*zwave.ConfigurationSet); isSet && g.supervised {
			err = g.cmd.Send(ctx, g.id, c, g.endpoint, true, g.logResult("configuration write"))
		} else {
			err = g.cmd.SendUnsupervised(ctx, g.id, c, g.endpoint, true)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (g *Gate) HandleReport(_ context.Context, c zwave.Command) {
	switch rep := c.(type) {
	case *zwave.SwitchMultilevelReport:
		target := rep.TargetValue
		if !rep.HasTarget {
			target = rep.Value
		}
		g.mu.Lock()
		g.lastValue = rep.Value
		g.mu.Unlock()
		g.emitDoor(state.InferGate(rep.Value, target, g.reportStopped))
	case *zwave.ConfigurationReport:
		p, ok := find(gateParameters, rep.Parameter)
		if !ok {
			g.logger.Debug("report for unknown parameter", "parameter", rep.Parameter, "value", rep.Value)
			return
		}
		g.logger.Info("configuration read back",
			"parameter", rep.Parameter,
			"title", p.Title,
			"value", p.DecodeExternal(rep.Value),
		)
	case *zwave.NotificationReport:
		g.logger.Info("notification received", "type", rep.NotificationType, "event", rep.Event)
	case *zwave.BatteryReport:
		g.emitter.Emit(state.Event{
			DeviceID:  g.id,
			Attribute: "battery",
			Value:     strconv.Itoa(int(rep.Level)),
			Unit:      "%",
		}, false)
	default:
		g.logger.Debug("unhandled command",
			"class", fmt.Sprintf("%#02x", c.CommandClassID()),
			"command", fmt.Sprintf("%#02x", c.CommandID()),
		)
	}
}

// emitDoor publishes the semantic door state and its contact
// projection. The contact reads closed only at the fully closed state;
// transitional states count as open.
func (g *Gate) emitDoor(s state.State) {
	g.emitter.Emit(state.Event{DeviceID: g.id, Attribute: "door", Value: string(s)}, false)

	contact := state.ContactOpen
	if s == state.Closed {
		contact = state.ContactClosed
	}
	g.emitter.Emit(state.Event{DeviceID: g.id, Attribute: "contact", Value: string(contact)}, false)
}

func (g *Gate) logResult(what string) supervision.Callback {
	return func(r supervision.Result) {
		if r.Err != nil {
			g.logger.Warn(what+" presumed lost", "error", r.Err)
			return
		}
		g.logger.Debug(what+" acknowledged", "status", r.Status)
	}
}
