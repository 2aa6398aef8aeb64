package clevertouch

import (
	"context"
	"fmt"
	"strconv"
)

// HeatMode is an operating mode of a radiator.
type HeatMode string

const (
	HeatModeComfort HeatMode = "comfort"
	HeatModeEco     HeatMode = "eco"
	HeatModeFrost   HeatMode = "frost"
	HeatModeProgram HeatMode = "program"
	HeatModeBoost   HeatMode = "boost"
	HeatModeOff     HeatMode = "off"
)

// TempSlot names one of a radiator's temperature values.
type TempSlot string

const (
	SlotComfort TempSlot = "comfort"
	SlotEco     TempSlot = "eco"
	SlotFrost   TempSlot = "frost"
	SlotBoost   TempSlot = "boost"
	SlotManual  TempSlot = "manual"

	// SlotCurrent is the measured air temperature; read-only.
	SlotCurrent TempSlot = "current"
	// SlotTarget is the setpoint of the active mode; read-only and not
	// Valid when no mode targets a temperature.
	SlotTarget TempSlot = "target"

	slotNone TempSlot = ""
)

// Wire tables for the service's mode and temperature encoding. The exact
// value sets are service-defined; a rebranded deployment that diverges only
// needs changes here.
var (
	heatModeCodes = map[HeatMode]string{
		HeatModeComfort: "0",
		HeatModeOff:     "1",
		HeatModeFrost:   "2",
		HeatModeEco:     "3",
		HeatModeBoost:   "4",
		HeatModeProgram: "11",
	}

	// Read-side mode table, kept symmetric with heatModeCodes: code "2" in
	// particular maps back to frost, matching its write encoding (some
	// vendor clients report it as comfort on reads; the asymmetry is
	// theirs, not the service's). "8" and "11" are the program submodes
	// targeting the comfort and eco slots.
	modeByCode = map[string]struct {
		mode HeatMode
		slot TempSlot
	}{
		"0":  {HeatModeComfort, SlotComfort},
		"1":  {HeatModeOff, slotNone},
		"2":  {HeatModeFrost, SlotFrost},
		"3":  {HeatModeEco, SlotEco},
		"4":  {HeatModeBoost, SlotBoost},
		"8":  {HeatModeProgram, SlotComfort},
		"11": {HeatModeProgram, SlotEco},
	}

	slotParams = map[TempSlot]string{
		SlotComfort: "consigne_confort",
		SlotEco:     "consigne_eco",
		SlotFrost:   "consigne_hg",
		SlotBoost:   "consigne_boost",
		SlotManual:  "consigne_manuel",
		SlotCurrent: "temperature_air",
	}

	// Slots present in every radiator read, in wire order.
	readSlots = []TempSlot{SlotComfort, SlotEco, SlotFrost, SlotBoost, SlotCurrent}

	writableSlots = map[TempSlot]bool{
		SlotComfort: true,
		SlotEco:     true,
		SlotFrost:   true,
		SlotBoost:   true,
		SlotManual:  true,
	}

	// Writable temperature slot adjusted when activating a mode.
	modeSlots = map[HeatMode]TempSlot{
		HeatModeComfort: SlotComfort,
		HeatModeEco:     SlotEco,
		HeatModeFrost:   SlotFrost,
		HeatModeBoost:   SlotBoost,
	}
)

// Setpoint range the service accepts, in device units (5°C to 30°C).
const (
	minSetpointDevice = 410
	maxSetpointDevice = 860
)

// Radiator is a snapshot of one radiator. Mutation methods validate their
// arguments, send a write query and return; they never update the snapshot.
// Confirmed state is only observable after the owning Home is refreshed.
type Radiator struct {
	deviceCore

	// HeatMode is the active operating mode.
	HeatMode HeatMode

	// TargetSlot is the temperature slot the active mode targets, or "".
	TargetSlot TempSlot

	// Active reports whether the radiator is currently heating.
	Active bool

	// Temperatures maps slot names to values; keys are the readSlots plus
	// SlotTarget.
	Temperatures map[TempSlot]Temperature

	// BoostTime is the configured boost duration in seconds.
	BoostTime int

	// BoostRemaining is the remaining boost time in seconds, 0 when boost
	// is not running or the service did not report it.
	BoostRemaining int
}

func newRadiator(session *Session, home *HomeInfo, data map[string]any) (*Radiator, error) {
	r := &Radiator{deviceCore: deviceCore{session: session, home: home, kind: KindRadiator}}
	if err := r.parseState(data); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Radiator) parseState(data map[string]any) error {
	if err := r.parse(data); err != nil {
		return err
	}

	modeCode, err := stringField(data, "gv_mode")
	if err != nil {
		return err
	}
	modeInfo, ok := modeByCode[modeCode]
	if !ok {
		return &ParseError{Field: "gv_mode", Reason: "unknown mode code " + modeCode}
	}

	active, err := boolField(data, "heating_up")
	if err != nil {
		return err
	}

	temperatures := make(map[TempSlot]Temperature, len(readSlots)+1)
	for _, slot := range readSlots {
		value, err := intField(data, slotParams[slot])
		if err != nil {
			return err
		}
		temperatures[slot] = deviceTemperature(value, slot, writableSlots[slot])
	}
	if modeInfo.slot == slotNone {
		temperatures[SlotTarget] = noTemperature(SlotTarget)
	} else {
		temperatures[SlotTarget] = deviceTemperature(temperatures[modeInfo.slot].Device(), SlotTarget, false)
	}

	boostTime, err := optionalIntField(data, "time_boost")
	if err != nil {
		return err
	}

	// time_boost_format_chrono carries the remaining boost time with
	// higher resolution than time_boost.
	boostRemaining := 0
	if chrono, err := optionalMapField(data, "time_boost_format_chrono"); err != nil {
		return err
	} else if chrono != nil {
		days, err := optionalIntField(chrono, "d")
		if err != nil {
			return err
		}
		hours, err := optionalIntField(chrono, "h")
		if err != nil {
			return err
		}
		minutes, err := optionalIntField(chrono, "m")
		if err != nil {
			return err
		}
		seconds, err := optionalIntField(chrono, "s")
		if err != nil {
			return err
		}
		boostRemaining = ((days*24+hours)*60+minutes)*60 + seconds
	}

	r.HeatMode = modeInfo.mode
	r.TargetSlot = modeInfo.slot
	r.Active = active
	r.Temperatures = temperatures
	r.BoostTime = boostTime
	r.BoostRemaining = boostRemaining
	return nil
}

// SetTemperature writes a new value for one of the writable temperature
// slots. The snapshot is not updated; refresh the home to observe the
// confirmed value.
func (r *Radiator) SetTemperature(ctx context.Context, slot TempSlot, value float64, unit Unit) error {
	if !writableSlots[slot] {
		if slot == SlotCurrent || slot == SlotTarget {
			return &ValidationError{Reason: fmt.Sprintf("temperature slot %q is read-only", slot)}
		}
		return &ValidationError{Reason: fmt.Sprintf("unknown temperature slot %q", slot)}
	}
	param := slotParams[slot]
	temp, err := NewTemperature(value, unit)
	if err != nil {
		return err
	}
	if temp.Device() < minSetpointDevice || temp.Device() > maxSetpointDevice {
		return &ValidationError{Reason: fmt.Sprintf("setpoint %.1f%s is outside the accepted 5-30°C range", value, unitSuffix(unit))}
	}

	_, err = r.session.WriteQuery(ctx, r.home.ID, map[string]string{
		"id_device": r.localID,
		param:       strconv.Itoa(temp.Device()),
	})
	return err
}

// SetTargetTemperature writes the setpoint of the currently active mode.
func (r *Radiator) SetTargetTemperature(ctx context.Context, value float64, unit Unit) error {
	if r.TargetSlot == slotNone {
		return &ValidationError{Reason: fmt.Sprintf("mode %q has no adjustable setpoint", r.HeatMode)}
	}
	return r.SetTemperature(ctx, r.TargetSlot, value, unit)
}

// SetHeatMode writes a new operating mode. The snapshot is not updated.
func (r *Radiator) SetHeatMode(ctx context.Context, mode HeatMode) error {
	code, ok := heatModeCodes[mode]
	if !ok {
		return &ValidationError{Reason: fmt.Sprintf("unknown heat mode %q", mode)}
	}

	_, err := r.session.WriteQuery(ctx, r.home.ID, map[string]string{
		"id_device": r.localID,
		"gv_mode":   code,
		"nv_mode":   code,
	})
	return err
}

// SetBoostTime configures the boost duration, in seconds, used by
// subsequent activations of boost mode.
func (r *Radiator) SetBoostTime(ctx context.Context, seconds int) error {
	if seconds < 0 {
		return &ValidationError{Reason: "boost time must not be negative"}
	}

	_, err := r.session.WriteQuery(ctx, r.home.ID, map[string]string{
		"id_device":  r.localID,
		"time_boost": strconv.Itoa(seconds),
	})
	return err
}

// ModeOptions carries the optional adjustments of ActivateMode.
type ModeOptions struct {
	// Temperature, when non-nil, adjusts the activated mode's setpoint.
	// Unit must be set alongside it.
	Temperature *float64
	Unit        Unit

	// BoostTime, in seconds, applies to HeatModeBoost only.
	BoostTime int
}

// ActivateMode switches the operating mode and optionally adjusts the
// mode's setpoint and the boost duration in the same write query.
func (r *Radiator) ActivateMode(ctx context.Context, mode HeatMode, opts ModeOptions) error {
	code, ok := heatModeCodes[mode]
	if !ok {
		return &ValidationError{Reason: fmt.Sprintf("unknown heat mode %q", mode)}
	}
	if opts.Temperature != nil && opts.Unit == "" {
		return &ValidationError{Reason: "unit must be set when a temperature is provided"}
	}
	if opts.BoostTime != 0 && mode != HeatModeBoost {
		return &ValidationError{Reason: "boost time can only be set for boost mode"}
	}
	if opts.BoostTime < 0 {
		return &ValidationError{Reason: "boost time must not be negative"}
	}

	params := map[string]string{
		"id_device": r.localID,
		"gv_mode":   code,
		"nv_mode":   code,
	}

	if opts.Temperature != nil {
		slot, ok := modeSlots[mode]
		if !ok {
			return &ValidationError{Reason: fmt.Sprintf("mode %q has no adjustable setpoint", mode)}
		}
		temp, err := NewTemperature(*opts.Temperature, opts.Unit)
		if err != nil {
			return err
		}
		if temp.Device() < minSetpointDevice || temp.Device() > maxSetpointDevice {
			return &ValidationError{Reason: fmt.Sprintf("setpoint %.1f%s is outside the accepted 5-30°C range", *opts.Temperature, unitSuffix(opts.Unit))}
		}
		params[slotParams[slot]] = strconv.Itoa(temp.Device())
	}

	if opts.BoostTime != 0 {
		params["time_boost"] = strconv.Itoa(opts.BoostTime)
	}

	_, err := r.session.WriteQuery(ctx, r.home.ID, params)
	return err
}

func unitSuffix(unit Unit) string {
	switch unit {
	case UnitCelsius:
		return "°C"
	case UnitFahrenheit:
		return "°F"
	default:
		return " device units"
	}
}
