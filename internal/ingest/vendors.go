package ingest

// genericConfig is the fallback alias cascade.
var genericConfig = ProviderConfig{
	Name:           "generic",
	IDFields:       []string{"device_id", "deviceId", "collar_id", "id"},
	LatFields:      []string{"lat", "latitude", "y", "position.lat", "position.latitude"},
	LngFields:      []string{"lon", "lng", "longitude", "x", "position.lon", "position.lng", "position.longitude"},
	TimeFields:     []string{"timestamp", "time", "ts", "datetime", "date", "recorded_at", "fix_time"},
	SpeedFields:    []string{"speed", "velocity", "spd"},
	HeadingFields:  []string{"heading", "course", "bearing", "direction"},
	AltitudeFields: []string{"altitude", "alt", "elevation", "height"},
	AccuracyFields: []string{"accuracy", "hdop", "dop", "precision"},
	BatteryFields:  []string{"battery", "battery_level", "batt", "batteryLevel"},
	SignalFields:   []string{"signal", "signal_strength", "rssi", "signalStrength"},
}

// vendorConfigs are the built-in vendor formats in sniffing order.
var vendorConfigs = []ProviderConfig{
	{
		Name:           "vectronic",
		IDFields:       []string{"collarID", "collar_id"},
		LatFields:      []string{"latitude", "lat"},
		LngFields:      []string{"longitude", "lon"},
		TimeFields:     []string{"acquisitionTime", "acquisition_time", "scts", "timestamp"},
		AltitudeFields: []string{"height", "altitude"},
		AccuracyFields: []string{"dop", "hdop"},
		BatteryFields:  []string{"batteryPercent", "battery"},
		SignalFields:   []string{"rssi", "signal"},
	},
	{
		Name:           "lotek",
		IDFields:       []string{"deviceSerial", "device_serial"},
		LatFields:      []string{"Latitude", "latitude"},
		LngFields:      []string{"Longitude", "longitude"},
		TimeFields:     []string{"RecDateTime", "rec_date_time", "timestamp"},
		SpeedFields:    []string{"Speed", "speed"},
		HeadingFields:  []string{"Heading", "heading"},
		AltitudeFields: []string{"Altitude", "altitude"},
		AccuracyFields: []string{"DOP", "dop"},
		BatteryFields:  []string{"BatteryLevel", "battery_level", "battery"},
		SignalFields:   []string{"SignalStrength", "signal_strength"},
	},
	{
		Name:          "followit",
		IDFields:      []string{"unitId", "unit_id"},
		LatFields:     []string{"position.lat", "lat"},
		LngFields:     []string{"position.lng", "position.lon", "lng"},
		TimeFields:    []string{"time", "positionTime", "timestamp"},
		SpeedFields:   []string{"position.speed", "speed"},
		HeadingFields: []string{"position.course", "course", "heading"},
		BatteryFields: []string{"batteryLevel", "battery"},
		SignalFields:  []string{"gsmSignal", "signal"},
	},
	{
		Name:          "savannah",
		IDFields:      []string{"tag", "tagId"},
		LatFields:     []string{"fix.lat", "lat"},
		LngFields:     []string{"fix.lon", "lon"},
		TimeFields:    []string{"fix.time", "datetime", "timestamp"},
		SpeedFields:   []string{"fix.speed", "speed"},
		BatteryFields: []string{"batt", "battery"},
		SignalFields:  []string{"rssi"},
	},
}
