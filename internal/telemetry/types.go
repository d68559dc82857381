// Package telemetry ingests sensor readings published by devices.
//
// A reading arrives as a JSON payload on the device's telemetry topic,
// is persisted together with the device's liveness update in a single
// transaction, and then fans out to the automation evaluator, the room
// broadcast, and the optional time-series mirror.
package telemetry

import "time"

// Reading is one persisted sensor reading. All metric fields are
// pointers: devices report only the metrics they have, and an absent
// metric must stay NULL rather than become a zero.
type Reading struct {
	ID       string `json:"id"`
	DeviceID string `json:"device_id"`
	RoomID   string `json:"room_id"`
	FarmID   string `json:"farm_id"`

	TemperatureC      *float64 `json:"temperature_c,omitempty"`
	HumidityPct       *float64 `json:"humidity_pct,omitempty"`
	CO2PPM            *float64 `json:"co2_ppm,omitempty"`
	LightLux          *float64 `json:"light_lux,omitempty"`
	SubstrateMoisture *float64 `json:"substrate_moisture,omitempty"`
	BatteryV          *float64 `json:"battery_v,omitempty"`

	// RecordedAt is the device-reported timestamp, or the ingestion time
	// when the payload carried none (or an unparseable one).
	RecordedAt time.Time `json:"recorded_at"`
}

// Payload is the wire format devices publish on their telemetry topic.
// The canonical metric keys are bare names (temperature, humidity, co2,
// light, substrate_moisture, battery); unit-suffixed keys from older
// firmware builds are accepted as aliases. Timestamp is kept raw
// because firmware in the field emits several formats; see
// ParseTimestamp.
type Payload struct {
	Temperature       *float64 `json:"temperature"`
	Humidity          *float64 `json:"humidity"`
	CO2               *float64 `json:"co2"`
	Light             *float64 `json:"light"`
	SubstrateMoisture *float64 `json:"substrate_moisture"`
	Battery           *float64 `json:"battery"`
	Timestamp         string   `json:"timestamp"`

	// Unit-suffixed aliases.
	TemperatureC *float64 `json:"temperature_c"`
	HumidityPct  *float64 `json:"humidity_pct"`
	CO2PPM       *float64 `json:"co2_ppm"`
	LightLux     *float64 `json:"light_lux"`
	BatteryV     *float64 `json:"battery_v"`
}

// first returns the canonical value, falling back to the alias.
func first(canonical, alias *float64) *float64 {
	if canonical != nil {
		return canonical
	}
	return alias
}

// metrics is the payload's metric set after alias resolution.
type metrics struct {
	Temperature       *float64
	Humidity          *float64
	CO2               *float64
	Light             *float64
	SubstrateMoisture *float64
	Battery           *float64
}

func (p *Payload) metrics() metrics {
	return metrics{
		Temperature:       first(p.Temperature, p.TemperatureC),
		Humidity:          first(p.Humidity, p.HumidityPct),
		CO2:               first(p.CO2, p.CO2PPM),
		Light:             first(p.Light, p.LightLux),
		SubstrateMoisture: p.SubstrateMoisture,
		Battery:           first(p.Battery, p.BatteryV),
	}
}

// HasMetrics reports whether at least one metric field is present
// under either key vocabulary.
func (p *Payload) HasMetrics() bool {
	m := p.metrics()
	return m.Temperature != nil || m.Humidity != nil || m.CO2 != nil ||
		m.Light != nil || m.SubstrateMoisture != nil || m.Battery != nil
}

// Metric returns the named metric value from a reading, with ok=false
// when the device did not report it. Names use the wire vocabulary
// (temperature, humidity, co2, light, substrate_moisture, battery);
// the unit-suffixed storage names are accepted as aliases so rules
// written against either vocabulary resolve.
func (r *Reading) Metric(name string) (float64, bool) {
	var p *float64
	switch name {
	case "temperature", "temperature_c":
		p = r.TemperatureC
	case "humidity", "humidity_pct":
		p = r.HumidityPct
	case "co2", "co2_ppm":
		p = r.CO2PPM
	case "light", "light_lux":
		p = r.LightLux
	case "substrate_moisture":
		p = r.SubstrateMoisture
	case "battery", "battery_v":
		p = r.BatteryV
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// Fields returns the present metrics as a map, for the time-series
// mirror. Absent metrics are omitted entirely.
func (r *Reading) Fields() map[string]interface{} {
	fields := make(map[string]interface{}, 6)
	add := func(name string, p *float64) {
		if p != nil {
			fields[name] = *p
		}
	}
	add("temperature_c", r.TemperatureC)
	add("humidity_pct", r.HumidityPct)
	add("co2_ppm", r.CO2PPM)
	add("light_lux", r.LightLux)
	add("substrate_moisture", r.SubstrateMoisture)
	add("battery_v", r.BatteryV)
	return fields
}
