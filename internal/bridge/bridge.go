// Package bridge exposes the account's devices to Home Assistant over MQTT:
// discovery configs on startup, retained state on every poll, and command
// topics mapped to device writes.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	clevertouch "github.com/hemphen/clevertouch-go"
	"github.com/hemphen/clevertouch-go/internal/logging"
)

// Home Assistant climate modes and the heat modes they map to on write.
// Reads collapse every heating mode except program onto "heat".
var heatModeByHAMode = map[string]clevertouch.HeatMode{
	"off":  clevertouch.HeatModeOff,
	"heat": clevertouch.HeatModeComfort,
	"auto": clevertouch.HeatModeProgram,
}

var presetModes = []string{"comfort", "eco", "frost", "boost", "program", "off"}

type switchable interface {
	clevertouch.Device
	SetOnOff(ctx context.Context, on bool) error
}

// Bridge connects one account to an MQTT broker. State flows out on
// Publish, commands flow in via Subscribe. Command writes are followed by a
// home refresh and a state publish, so Home Assistant only ever sees
// cloud-confirmed state.
//
// Account and Home are not safe for concurrent use. Commands arrive on
// paho's handler goroutine while the poll loop and Prometheus scrapes run
// on their own, so cloudMu — shared with the rest of the daemon — is held
// across every cloud-touching method.
type Bridge struct {
	account         *clevertouch.Account
	cloudMu         *sync.Mutex
	topicPrefix     string
	discoveryPrefix string
}

func New(account *clevertouch.Account, topicPrefix, discoveryPrefix string, cloudMu *sync.Mutex) *Bridge {
	return &Bridge{
		account:         account,
		cloudMu:         cloudMu,
		topicPrefix:     topicPrefix,
		discoveryPrefix: discoveryPrefix,
	}
}

func (b *Bridge) topic(deviceID, facet, leaf string) string {
	return fmt.Sprintf("%s/%s/%s/%s", b.topicPrefix, deviceID, facet, leaf)
}

// Register publishes a retained discovery config for every device. Run it
// from the MQTT OnConnect handler so configs survive broker restarts.
func (b *Bridge) Register(ctx context.Context, client mqtt.Client) error {
	b.cloudMu.Lock()
	defer b.cloudMu.Unlock()

	homes, err := b.account.GetHomes(ctx)
	if err != nil {
		return err
	}

	for _, home := range homes {
		for _, device := range home.Devices {
			switch device.(type) {
			case *clevertouch.Radiator:
				if err := b.registerClimate(client, home, device); err != nil {
					return err
				}
			case *clevertouch.Light, *clevertouch.Outlet:
				if err := b.registerSwitch(client, home, device); err != nil {
					return err
				}
			default:
				continue
			}
			logging.Debug("registered device",
				zap.String("home", home.Info.Label),
				zap.String("device", device.Label()),
				zap.String("kind", string(device.Kind())))
		}
	}
	return nil
}

func (b *Bridge) registerClimate(client mqtt.Client, home *clevertouch.Home, device clevertouch.Device) error {
	id := device.ID()
	cfg := climateConfig{
		UniqueID: "clevertouch_" + id,
		Name:     fmt.Sprintf("%s %s", home.Info.Label, device.Label()),

		Modes:            []string{"off", "heat", "auto"},
		ModeStateTopic:   b.topic(id, "mode", "state"),
		ModeCommandTopic: b.topic(id, "mode", "set"),

		PresetModes:            presetModes,
		PresetModeStateTopic:   b.topic(id, "preset", "state"),
		PresetModeCommandTopic: b.topic(id, "preset", "set"),

		TemperatureStateTopic:   b.topic(id, "target", "state"),
		TemperatureCommandTopic: b.topic(id, "target", "set"),
		CurrentTemperatureTopic: b.topic(id, "current", "state"),

		MinTemp:  5,
		MaxTemp:  30,
		TempStep: 0.5,
	}

	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return b.publish(client, fmt.Sprintf("%s/climate/%s/config", b.discoveryPrefix, id), string(payload))
}

func (b *Bridge) registerSwitch(client mqtt.Client, home *clevertouch.Home, device clevertouch.Device) error {
	id := device.ID()
	cfg := switchConfig{
		UniqueID:     "clevertouch_" + id,
		Name:         fmt.Sprintf("%s %s", home.Info.Label, device.Label()),
		StateTopic:   b.topic(id, "switch", "state"),
		CommandTopic: b.topic(id, "switch", "set"),
	}

	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return b.publish(client, fmt.Sprintf("%s/switch/%s/config", b.discoveryPrefix, id), string(payload))
}

// Subscribe registers the shared command handler. Like Register it belongs
// in the OnConnect handler so subscriptions survive reconnects.
func (b *Bridge) Subscribe(client mqtt.Client) {
	filter := b.topicPrefix + "/+/+/set"
	if t := client.Subscribe(filter, 0, b.handleCommand); t.Wait() && t.Error() != nil {
		logging.Error("MQTT subscribe failed", zap.String("filter", filter), zap.Error(t.Error()))
	}
}

// Publish refreshes every home and publishes retained state for each device.
func (b *Bridge) Publish(ctx context.Context, client mqtt.Client) error {
	b.cloudMu.Lock()
	defer b.cloudMu.Unlock()

	homes, err := b.account.GetHomes(ctx)
	if err != nil {
		return err
	}

	for _, home := range homes {
		if err := home.Refresh(ctx); err != nil {
			return err
		}
		for _, device := range home.Devices {
			if err := b.publishDeviceState(client, device); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Bridge) publishDeviceState(client mqtt.Client, device clevertouch.Device) error {
	id := device.ID()
	switch d := device.(type) {
	case *clevertouch.Radiator:
		haMode := "heat"
		switch d.HeatMode {
		case clevertouch.HeatModeOff:
			haMode = "off"
		case clevertouch.HeatModeProgram:
			haMode = "auto"
		}
		if err := b.publish(client, b.topic(id, "mode", "state"), haMode); err != nil {
			return err
		}
		if err := b.publish(client, b.topic(id, "preset", "state"), string(d.HeatMode)); err != nil {
			return err
		}
		if target := d.Temperatures[clevertouch.SlotTarget]; target.Valid() {
			if err := b.publish(client, b.topic(id, "target", "state"), formatCelsius(target)); err != nil {
				return err
			}
		}
		if current := d.Temperatures[clevertouch.SlotCurrent]; current.Valid() {
			if err := b.publish(client, b.topic(id, "current", "state"), formatCelsius(current)); err != nil {
				return err
			}
		}
	case switchable:
		state := "OFF"
		if isOn(d) {
			state = "ON"
		}
		if err := b.publish(client, b.topic(id, "switch", "state"), state); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bridge) handleCommand(client mqtt.Client, msg mqtt.Message) {
	rest := strings.TrimPrefix(msg.Topic(), b.topicPrefix+"/")
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[2] != "set" {
		logging.Warn("ignoring command on unexpected topic", zap.String("topic", msg.Topic()))
		return
	}
	deviceID, facet := parts[0], parts[1]
	payload := string(msg.Payload())

	ctx := context.Background()
	b.cloudMu.Lock()
	defer b.cloudMu.Unlock()

	device, home, err := b.findDevice(ctx, deviceID)
	if err != nil {
		logging.Warn("command for unknown device",
			zap.String("device_id", deviceID), zap.Error(err))
		return
	}

	if err := b.applyCommand(ctx, device, facet, payload); err != nil {
		logging.Error("command failed",
			zap.String("device", device.Label()),
			zap.String("facet", facet),
			zap.String("payload", payload),
			zap.Error(err))
		return
	}

	// Re-read so the retained state reflects what the cloud accepted.
	if err := home.Refresh(ctx); err != nil {
		logging.Error("refresh after command failed", zap.Error(err))
		return
	}
	if fresh, ok := home.Devices[deviceID]; ok {
		if err := b.publishDeviceState(client, fresh); err != nil {
			logging.Error("state publish after command failed", zap.Error(err))
		}
	}
}

func (b *Bridge) applyCommand(ctx context.Context, device clevertouch.Device, facet, payload string) error {
	switch facet {
	case "mode":
		radiator, ok := device.(*clevertouch.Radiator)
		if !ok {
			return fmt.Errorf("device %q is not a radiator", device.Label())
		}
		mode, ok := heatModeByHAMode[payload]
		if !ok {
			return fmt.Errorf("unknown climate mode %q", payload)
		}
		return radiator.SetHeatMode(ctx, mode)

	case "preset":
		radiator, ok := device.(*clevertouch.Radiator)
		if !ok {
			return fmt.Errorf("device %q is not a radiator", device.Label())
		}
		return radiator.SetHeatMode(ctx, clevertouch.HeatMode(payload))

	case "target":
		radiator, ok := device.(*clevertouch.Radiator)
		if !ok {
			return fmt.Errorf("device %q is not a radiator", device.Label())
		}
		celsius, err := strconv.ParseFloat(payload, 64)
		if err != nil {
			return fmt.Errorf("malformed temperature %q", payload)
		}
		return radiator.SetTargetTemperature(ctx, celsius, clevertouch.UnitCelsius)

	case "switch":
		sw, ok := device.(switchable)
		if !ok {
			return fmt.Errorf("device %q is not switchable", device.Label())
		}
		return sw.SetOnOff(ctx, payload == "ON")

	default:
		return fmt.Errorf("unknown command facet %q", facet)
	}
}

func (b *Bridge) findDevice(ctx context.Context, deviceID string) (clevertouch.Device, *clevertouch.Home, error) {
	homes, err := b.account.GetHomes(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, home := range homes {
		if device, ok := home.Devices[deviceID]; ok {
			return device, home, nil
		}
	}
	return nil, nil, fmt.Errorf("no device with id %q", deviceID)
}

func (b *Bridge) publish(client mqtt.Client, topic, payload string) error {
	if t := client.Publish(topic, 0, true, payload); t.Wait() && t.Error() != nil {
		return fmt.Errorf("publish %s: %w", topic, t.Error())
	}
	return nil
}

func formatCelsius(t clevertouch.Temperature) string {
	return strconv.FormatFloat(t.Celsius(), 'f', 1, 64)
}

func isOn(device clevertouch.Device) bool {
	switch d := device.(type) {
	case *clevertouch.Light:
		return d.IsOn
	case *clevertouch.Outlet:
		return d.IsOn
	default:
		return false
	}
}
