package clevertouch

import "context"

// OnOffDevice is the shared model of devices with a single on/off state.
type OnOffDevice struct {
	deviceCore

	// IsOn is the state reported at the time of the last fetch.
	IsOn bool
}

func (d *OnOffDevice) parseState(data map[string]any) error {
	if err := d.parse(data); err != nil {
		return err
	}
	on, err := boolField(data, "on_off")
	if err != nil {
		return err
	}
	d.IsOn = on
	return nil
}

// SetOnOff writes the on/off state. The snapshot is not updated; refresh
// the owning home to observe the confirmed state.
func (d *OnOffDevice) SetOnOff(ctx context.Context, on bool) error {
	state := "0"
	if on {
		state = "1"
	}
	_, err := d.session.WriteQuery(ctx, d.home.ID, map[string]string{
		"id_device": d.localID,
		"on_off":    state,
	})
	return err
}

// Light is a switchable light.
type Light struct {
	OnOffDevice
}

func newLight(session *Session, home *HomeInfo, data map[string]any) (*Light, error) {
	l := &Light{OnOffDevice{deviceCore: deviceCore{session: session, home: home, kind: KindLight}}}
	if err := l.parseState(data); err != nil {
		return nil, err
	}
	return l, nil
}

// Outlet is a switchable power outlet.
type Outlet struct {
	OnOffDevice
}

func newOutlet(session *Session, home *HomeInfo, data map[string]any) (*Outlet, error) {
	o := &Outlet{OnOffDevice{deviceCore: deviceCore{session: session, home: home, kind: KindOutlet}}}
	if err := o.parseState(data); err != nil {
		return nil, err
	}
	return o, nil
}
