package clevertouch

// DeviceKind classifies a device within a home.
type DeviceKind string

const (
	KindRadiator DeviceKind = "radiator"
	KindLight    DeviceKind = "light"
	KindOutlet   DeviceKind = "outlet"
	KindUnknown  DeviceKind = "unknown"
)

// The service encodes the device kind in the first rune of the in-home
// device id.
const (
	devicePrefixRadiator = 'C'
	devicePrefixLight    = 'E'
	devicePrefixOutlet   = 'O'
)

// Device is a snapshot of one device within a home. Concrete types are
// *Radiator, *Light, *Outlet and *UnknownDevice; callers type-switch to get
// at kind-specific state and mutations. Devices are owned by the Home that
// fetched them and are replaced wholesale when the home is refreshed.
type Device interface {
	// ID is the device's cloud-wide id, the key in Home.Devices.
	ID() string
	// LocalID is the id the device has within its home; write queries are
	// addressed with it.
	LocalID() string
	Label() string
	Kind() DeviceKind
	Zone() ZoneInfo
}

type deviceCore struct {
	session *Session
	home    *HomeInfo

	id      string
	localID string
	label   string
	zone    ZoneInfo
	kind    DeviceKind
}

func (d *deviceCore) ID() string       { return d.id }
func (d *deviceCore) LocalID() string  { return d.localID }
func (d *deviceCore) Label() string    { return d.label }
func (d *deviceCore) Kind() DeviceKind { return d.kind }
func (d *deviceCore) Zone() ZoneInfo   { return d.zone }

func (d *deviceCore) parse(data map[string]any) error {
	id, err := stringField(data, "id")
	if err != nil {
		return err
	}
	localID, err := stringField(data, "id_device")
	if err != nil {
		return err
	}
	label, err := stringField(data, "label_interface")
	if err != nil {
		return err
	}
	zoneNum, err := stringField(data, "num_zone")
	if err != nil {
		return err
	}
	zone, ok := d.home.Zones[zoneNum]
	if !ok {
		return &ParseError{Field: "num_zone", Reason: "device references unknown zone " + zoneNum}
	}

	d.id = id
	d.localID = localID
	d.label = label
	d.zone = zone
	return nil
}

// newDevice builds the concrete device for the raw data's id_device prefix.
// Unknown prefixes produce an *UnknownDevice so new product types do not
// break home parsing.
func newDevice(session *Session, home *HomeInfo, data map[string]any) (Device, error) {
	localID, err := stringField(data, "id_device")
	if err != nil {
		return nil, err
	}
	if localID == "" {
		return nil, &ParseError{Field: "id_device", Reason: "empty"}
	}

	switch rune(localID[0]) {
	case devicePrefixRadiator:
		return newRadiator(session, home, data)
	case devicePrefixLight:
		return newLight(session, home, data)
	case devicePrefixOutlet:
		return newOutlet(session, home, data)
	default:
		device := &UnknownDevice{deviceCore{session: session, home: home, kind: KindUnknown}}
		if err := device.parse(data); err != nil {
			return nil, err
		}
		return device, nil
	}
}

// UnknownDevice is a device of a kind this library has no model for. It
// carries identity and zone information only.
type UnknownDevice struct {
	deviceCore
}
