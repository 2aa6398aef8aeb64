package clevertouch

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func testRadiator(t *testing.T, cloud *fakeCloud) *Radiator {
	t.Helper()
	account := testAccount(t, cloud)
	home, err := account.GetHome(context.Background(), "home-1")
	if err != nil {
		t.Fatalf("GetHome: %v", err)
	}
	radiator, ok := home.Devices["rad-1"].(*Radiator)
	if !ok {
		t.Fatalf("rad-1 is %T, want *Radiator", home.Devices["rad-1"])
	}
	return radiator
}

func TestSetTemperatureBuildsQuery(t *testing.T) {
	cloud := newFakeCloud(t)
	radiator := testRadiator(t, cloud)

	if err := radiator.SetTemperature(context.Background(), SlotComfort, 21.5, UnitCelsius); err != nil {
		t.Fatalf("SetTemperature: %v", err)
	}

	form := cloud.lastPush(t)
	if got := form.Get("query[id_device]"); got != "C1" {
		t.Errorf("id_device = %q, want C1", got)
	}
	// 21.5°C in the native unit: round(18*21.5 + 320) = 707.
	if got := form.Get("query[consigne_confort]"); got != "707" {
		t.Errorf("consigne_confort = %q, want 707", got)
	}
}

func TestSetTemperatureDoesNotMutateSnapshot(t *testing.T) {
	cloud := newFakeCloud(t)
	radiator := testRadiator(t, cloud)
	before := radiator.Temperatures[SlotComfort].Device()

	if err := radiator.SetTemperature(context.Background(), SlotComfort, 25, UnitCelsius); err != nil {
		t.Fatalf("SetTemperature: %v", err)
	}
	if got := radiator.Temperatures[SlotComfort].Device(); got != before {
		t.Errorf("snapshot changed to %d; mutations must not write local state", got)
	}
}

func TestSetTemperatureValidation(t *testing.T) {
	cloud := newFakeCloud(t)
	radiator := testRadiator(t, cloud)

	tests := []struct {
		name  string
		slot  TempSlot
		value float64
		unit  Unit
	}{
		{"unknown slot", TempSlot("bogus"), 21, UnitCelsius},
		{"read-only current", SlotCurrent, 21, UnitCelsius},
		{"read-only target", SlotTarget, 21, UnitCelsius},
		{"unknown unit", SlotComfort, 21, Unit("kelvin")},
		{"below range", SlotComfort, 2, UnitCelsius},
		{"above range", SlotComfort, 45, UnitCelsius},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sent := len(cloud.pushForms)
			err := radiator.SetTemperature(context.Background(), tt.slot, tt.value, tt.unit)
			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("SetTemperature = %v, want *ValidationError", err)
			}
			if len(cloud.pushForms) != sent {
				t.Error("invalid call still reached the network")
			}
		})
	}
}

func TestFrostModeCodeReadsBackAsFrost(t *testing.T) {
	cloud := newFakeCloud(t)
	cloud.homeJSON = strings.Replace(testHomeJSON, `"gv_mode":"0"`, `"gv_mode":"2"`, 1)
	radiator := testRadiator(t, cloud)

	// Code "2" is frost on both the read and write side.
	if radiator.HeatMode != HeatModeFrost || radiator.TargetSlot != SlotFrost {
		t.Errorf("mode/slot = %q/%q, want frost/frost", radiator.HeatMode, radiator.TargetSlot)
	}
	if got := radiator.Temperatures[SlotTarget].Device(); got != 446 {
		t.Errorf("target = %d, want frost setpoint 446", got)
	}
	if code := heatModeCodes[HeatModeFrost]; code != "2" {
		t.Errorf("frost write code = %q, want 2", code)
	}
}

func TestSetHeatMode(t *testing.T) {
	cloud := newFakeCloud(t)
	radiator := testRadiator(t, cloud)

	if err := radiator.SetHeatMode(context.Background(), HeatModeEco); err != nil {
		t.Fatalf("SetHeatMode: %v", err)
	}
	form := cloud.lastPush(t)
	if form.Get("query[gv_mode]") != "3" || form.Get("query[nv_mode]") != "3" {
		t.Errorf("mode params = %q/%q, want 3/3", form.Get("query[gv_mode]"), form.Get("query[nv_mode]"))
	}
	if radiator.HeatMode != HeatModeComfort {
		t.Errorf("snapshot mode changed to %q; mutations must not write local state", radiator.HeatMode)
	}
}

func TestSetHeatModeUnknownFailsBeforeNetwork(t *testing.T) {
	cloud := newFakeCloud(t)
	radiator := testRadiator(t, cloud)

	err := radiator.SetHeatMode(context.Background(), HeatMode("unknown_mode"))
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("SetHeatMode = %v, want *ValidationError", err)
	}
	if len(cloud.pushForms) != 0 {
		t.Error("invalid mode still reached the network")
	}
}

func TestSetTargetTemperature(t *testing.T) {
	cloud := newFakeCloud(t)
	account := testAccount(t, cloud)
	home, err := account.GetHome(context.Background(), "home-1")
	if err != nil {
		t.Fatalf("GetHome: %v", err)
	}

	// rad-1 is in comfort mode; the target write goes to the comfort slot.
	radiator := home.Devices["rad-1"].(*Radiator)
	if err := radiator.SetTargetTemperature(context.Background(), 20, UnitCelsius); err != nil {
		t.Fatalf("SetTargetTemperature: %v", err)
	}
	if got := cloud.lastPush(t).Get("query[consigne_confort]"); got != "680" {
		t.Errorf("consigne_confort = %q, want 680", got)
	}

	// rad-2 is off; there is no setpoint to adjust.
	off := home.Devices["rad-2"].(*Radiator)
	var validationErr *ValidationError
	if err := off.SetTargetTemperature(context.Background(), 20, UnitCelsius); !errors.As(err, &validationErr) {
		t.Fatalf("SetTargetTemperature on off radiator = %v, want *ValidationError", err)
	}
}

func TestSetBoostTime(t *testing.T) {
	cloud := newFakeCloud(t)
	radiator := testRadiator(t, cloud)

	if err := radiator.SetBoostTime(context.Background(), 7200); err != nil {
		t.Fatalf("SetBoostTime: %v", err)
	}
	if got := cloud.lastPush(t).Get("query[time_boost]"); got != "7200" {
		t.Errorf("time_boost = %q, want 7200", got)
	}

	var validationErr *ValidationError
	if err := radiator.SetBoostTime(context.Background(), -1); !errors.As(err, &validationErr) {
		t.Fatalf("SetBoostTime(-1) = %v, want *ValidationError", err)
	}
}

func TestActivateMode(t *testing.T) {
	cloud := newFakeCloud(t)
	radiator := testRadiator(t, cloud)

	temp := 22.0
	err := radiator.ActivateMode(context.Background(), HeatModeBoost, ModeOptions{
		Temperature: &temp,
		Unit:        UnitCelsius,
		BoostTime:   1800,
	})
	if err != nil {
		t.Fatalf("ActivateMode: %v", err)
	}

	form := cloud.lastPush(t)
	if form.Get("query[gv_mode]") != "4" || form.Get("query[nv_mode]") != "4" {
		t.Errorf("mode params = %q/%q, want 4/4", form.Get("query[gv_mode]"), form.Get("query[nv_mode]"))
	}
	if got := form.Get("query[consigne_boost]"); got != "716" {
		t.Errorf("consigne_boost = %q, want 716", got)
	}
	if got := form.Get("query[time_boost]"); got != "1800" {
		t.Errorf("time_boost = %q, want 1800", got)
	}
}

func TestActivateModeValidation(t *testing.T) {
	cloud := newFakeCloud(t)
	radiator := testRadiator(t, cloud)
	temp := 22.0

	tests := []struct {
		name string
		mode HeatMode
		opts ModeOptions
	}{
		{"unknown mode", HeatMode("turbo"), ModeOptions{}},
		{"temperature without unit", HeatModeComfort, ModeOptions{Temperature: &temp}},
		{"boost time on non-boost mode", HeatModeEco, ModeOptions{BoostTime: 600}},
		{"temperature on program mode", HeatModeProgram, ModeOptions{Temperature: &temp, Unit: UnitCelsius}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sent := len(cloud.pushForms)
			err := radiator.ActivateMode(context.Background(), tt.mode, tt.opts)
			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("ActivateMode = %v, want *ValidationError", err)
			}
			if len(cloud.pushForms) != sent {
				t.Error("invalid call still reached the network")
			}
		})
	}
}

func TestLightSetOnOff(t *testing.T) {
	cloud := newFakeCloud(t)
	account := testAccount(t, cloud)
	home, err := account.GetHome(context.Background(), "home-1")
	if err != nil {
		t.Fatalf("GetHome: %v", err)
	}
	light := home.Devices["light-1"].(*Light)

	if err := light.SetOnOff(context.Background(), false); err != nil {
		t.Fatalf("SetOnOff: %v", err)
	}
	form := cloud.lastPush(t)
	if form.Get("query[id_device]") != "E1" || form.Get("query[on_off]") != "0" {
		t.Errorf("on_off params = %q/%q, want E1/0", form.Get("query[id_device]"), form.Get("query[on_off]"))
	}
	if !light.IsOn {
		t.Error("snapshot changed; mutations must not write local state")
	}
}
