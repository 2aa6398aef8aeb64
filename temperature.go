package clevertouch

import "math"

// Unit identifies a temperature unit understood by the library.
type Unit string

const (
	// UnitDevice is the service's native encoding: tenths of a degree
	// Fahrenheit, so 0°C is stored as 320.
	UnitDevice Unit = "device"

	UnitCelsius    Unit = "celsius"
	UnitFahrenheit Unit = "fahrenheit"
)

// Temperature is a single temperature value held in device units. The zero
// value is "no temperature" (Valid reports false), which the service uses
// for the target slot when no mode is active.
type Temperature struct {
	// Slot the temperature was read from, or "" for freestanding values.
	Slot TempSlot

	// Writable reports whether the slot accepts writes via SetTemperature.
	Writable bool

	device int
	valid  bool
}

// NewTemperature converts value in the given unit to a device-unit
// temperature. Unknown units yield *ValidationError.
func NewTemperature(value float64, unit Unit) (Temperature, error) {
	var device int
	switch unit {
	case UnitCelsius:
		device = int(math.Round(18*value + 320))
	case UnitFahrenheit:
		device = int(math.Round(10 * value))
	case UnitDevice:
		device = int(math.Round(value))
	default:
		return Temperature{}, &ValidationError{Reason: "unknown temperature unit " + string(unit)}
	}
	return Temperature{device: device, valid: true}, nil
}

func deviceTemperature(device int, slot TempSlot, writable bool) Temperature {
	return Temperature{Slot: slot, Writable: writable, device: device, valid: true}
}

func noTemperature(slot TempSlot) Temperature {
	return Temperature{Slot: slot}
}

// Valid reports whether the temperature holds a value.
func (t Temperature) Valid() bool { return t.valid }

// Device returns the value in the service's native unit.
func (t Temperature) Device() int { return t.device }

// Celsius returns the value in degrees Celsius, or NaN when not Valid.
func (t Temperature) Celsius() float64 {
	if !t.valid {
		return math.NaN()
	}
	return (float64(t.device) - 320) / 18
}

// Fahrenheit returns the value in degrees Fahrenheit, or NaN when not Valid.
func (t Temperature) Fahrenheit() float64 {
	if !t.valid {
		return math.NaN()
	}
	return float64(t.device) / 10
}

// As returns the value expressed in the given unit.
func (t Temperature) As(unit Unit) (float64, error) {
	switch unit {
	case UnitCelsius:
		return t.Celsius(), nil
	case UnitFahrenheit:
		return t.Fahrenheit(), nil
	case UnitDevice:
		return float64(t.device), nil
	default:
		return 0, &ValidationError{Reason: "unknown temperature unit " + string(unit)}
	}
}

// ConvertTemperature converts a value between units through the device
// encoding, matching what a write-then-read round trip would produce.
func ConvertTemperature(value float64, from, to Unit) (float64, error) {
	t, err := NewTemperature(value, from)
	if err != nil {
		return 0, err
	}
	return t.As(to)
}
