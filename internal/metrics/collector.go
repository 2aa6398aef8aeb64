// Package metrics exports radiator state as Prometheus metrics.
package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	clevertouch "github.com/hemphen/clevertouch-go"
)

// Collector scrapes the cloud on collection. Each scrape refreshes the
// account's homes so the gauges reflect confirmed device state.
//
// Account and Home are not safe for concurrent use; cloudMu is shared with
// every other cloud-touching path in the daemon (poll loop, MQTT commands)
// and held for the duration of a scrape.
type Collector struct {
	account *clevertouch.Account
	cloudMu *sync.Mutex
	timeout time.Duration

	temperature    *prometheus.GaugeVec
	target         *prometheus.GaugeVec
	heatingActive  *prometheus.GaugeVec
	boostRemaining *prometheus.GaugeVec
	deviceOn       *prometheus.GaugeVec
	lastSuccess    prometheus.Gauge
	success        prometheus.Gauge
}

func NewCollector(account *clevertouch.Account, cloudMu *sync.Mutex) *Collector {
	radiatorLabels := []string{"home_id", "home", "device_id", "device", "zone"}
	return &Collector{
		account: account,
		cloudMu: cloudMu,
		timeout: 30 * time.Second,
		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "clevertouch_temperature_celsius",
			Help: "Radiator temperatures per slot",
		}, append(radiatorLabels, "slot")),
		target: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "clevertouch_target_temperature_celsius",
			Help: "Setpoint of the active heat mode",
		}, radiatorLabels),
		heatingActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "clevertouch_heating_active_bool",
			Help: "Radiator currently heating (1=heating)",
		}, radiatorLabels),
		boostRemaining: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "clevertouch_boost_remaining_seconds",
			Help: "Remaining boost time per radiator",
		}, radiatorLabels),
		deviceOn: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "clevertouch_device_on_bool",
			Help: "On/off state of lights and outlets (1=on)",
		}, radiatorLabels),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clevertouch_last_success_timestamp_seconds",
			Help: "Last successful scrape timestamp (epoch seconds)",
		}),
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clevertouch_scrape_success",
			Help: "Last scrape success (1=ok, 0=error)",
		}),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.temperature.Describe(ch)
	c.target.Describe(ch)
	c.heatingActive.Describe(ch)
	c.boostRemaining.Describe(ch)
	c.deviceOn.Describe(ch)
	c.lastSuccess.Describe(ch)
	c.success.Describe(ch)
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	c.cloudMu.Lock()
	defer c.cloudMu.Unlock()

	homes, err := c.account.GetHomes(ctx)
	if err != nil {
		c.success.Set(0)
		c.collectAll(ch)
		return
	}

	c.temperature.Reset()
	c.target.Reset()
	c.heatingActive.Reset()
	c.boostRemaining.Reset()
	c.deviceOn.Reset()

	for _, home := range homes {
		if err := home.Refresh(ctx); err != nil {
			c.success.Set(0)
			c.collectAll(ch)
			return
		}
		for _, device := range home.Devices {
			labels := prometheus.Labels{
				"home_id":   home.ID,
				"home":      home.Info.Label,
				"device_id": device.ID(),
				"device":    device.Label(),
				"zone":      device.Zone().Label,
			}
			switch d := device.(type) {
			case *clevertouch.Radiator:
				for slot, temp := range d.Temperatures {
					if slot == clevertouch.SlotTarget || !temp.Valid() {
						continue
					}
					withSlot := prometheus.Labels{}
					for k, v := range labels {
						withSlot[k] = v
					}
					withSlot["slot"] = string(slot)
					c.temperature.With(withSlot).Set(temp.Celsius())
				}
				if target := d.Temperatures[clevertouch.SlotTarget]; target.Valid() {
					c.target.With(labels).Set(target.Celsius())
				}
				c.heatingActive.With(labels).Set(boolToFloat(d.Active))
				c.boostRemaining.With(labels).Set(float64(d.BoostRemaining))
			case *clevertouch.Light:
				c.deviceOn.With(labels).Set(boolToFloat(d.IsOn))
			case *clevertouch.Outlet:
				c.deviceOn.With(labels).Set(boolToFloat(d.IsOn))
			}
		}
	}

	c.success.Set(1)
	c.lastSuccess.Set(float64(time.Now().Unix()))
	c.collectAll(ch)
}

func (c *Collector) collectAll(ch chan<- prometheus.Metric) {
	c.temperature.Collect(ch)
	c.target.Collect(ch)
	c.heatingActive.Collect(ch)
	c.boostRemaining.Collect(ch)
	c.deviceOn.Collect(ch)
	c.lastSuccess.Collect(ch)
	c.success.Collect(ch)
}

func boolToFloat(value bool) float64 {
	if value {
		return 1
	}
	return 0
}
