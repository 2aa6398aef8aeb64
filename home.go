package clevertouch

import "context"

// ZoneInfo is the logical location of a device within a home.
type ZoneInfo struct {
	// Num is the zone's in-home id, referenced by device data.
	Num   string
	Label string
}

// HomeInfo carries the basic information about a home: its id, label and
// zones. User data contains it without zones; home data includes them.
type HomeInfo struct {
	ID    string
	Label string
	Zones map[string]ZoneInfo
}

func parseHomeInfo(data map[string]any) (*HomeInfo, error) {
	id, err := stringField(data, "smarthome_id")
	if err != nil {
		return nil, err
	}
	label, err := stringField(data, "label")
	if err != nil {
		return nil, err
	}

	info := &HomeInfo{ID: id, Label: label, Zones: map[string]ZoneInfo{}}

	if _, ok := data["zones"]; ok {
		zones, err := mapListField(data, "zones")
		if err != nil {
			return nil, err
		}
		for _, zoneData := range zones {
			num, err := stringField(zoneData, "num_zone")
			if err != nil {
				return nil, err
			}
			zoneLabel, err := stringField(zoneData, "zone_label")
			if err != nil {
				return nil, err
			}
			info.Zones[num] = ZoneInfo{Num: num, Label: zoneLabel}
		}
	}
	return info, nil
}

// Home is a refreshable snapshot of one home and its devices.
type Home struct {
	session *Session

	// ID is the home's cloud-wide id.
	ID string

	// Info is the parsed basic information, nil until the first Refresh.
	Info *HomeInfo

	// Devices maps device ids to the devices fetched by the last Refresh.
	Devices map[string]Device
}

func newHome(session *Session, homeID string) *Home {
	return &Home{session: session, ID: homeID}
}

// Refresh re-fetches the home and replaces Info and Devices wholesale.
// Device objects obtained before a refresh are orphaned: they keep their old
// state and are never updated in place.
func (h *Home) Refresh(ctx context.Context) error {
	data, err := h.session.ReadHomeData(ctx, h.ID)
	if err != nil {
		return err
	}

	info, err := parseHomeInfo(data)
	if err != nil {
		return err
	}
	if info.ID != h.ID {
		return &ParseError{Field: "smarthome_id", Reason: "response is for home " + info.ID}
	}

	deviceList, err := mapListField(data, "devices")
	if err != nil {
		return err
	}
	devices := make(map[string]Device, len(deviceList))
	for _, deviceData := range deviceList {
		device, err := newDevice(h.session, info, deviceData)
		if err != nil {
			return err
		}
		devices[device.ID()] = device
	}

	h.Info = info
	h.Devices = devices
	return nil
}
