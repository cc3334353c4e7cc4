package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// ApplyOutcome is the summary of one apply run written as a point.
type ApplyOutcome struct {
	State          string
	DryRun         bool
	Bridges        int
	Entities       int
	BackupRestored bool
	ServiceRunning bool
	StartedAt      time.Time
	FinishedAt     time.Time
}

// WriteBridgeCapacity records how full one bridge is.
func (c *Client) WriteBridgeCapacity(bridge string, entities, capacity int, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(bridgeCapacityPoint(bridge, entities, capacity, at))
}

// WriteApplyOutcome records the result of an apply run.
func (c *Client) WriteApplyOutcome(o ApplyOutcome) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(applyOutcomePoint(o))
}

// WritePoint writes a custom point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

func bridgeCapacityPoint(bridge string, entities, capacity int, at time.Time) *write.Point {
	utilisation := 0.0
	if capacity > 0 {
		utilisation = float64(entities) / float64(capacity)
	}
	return write.NewPoint(
		"bridge_capacity",
		map[string]string{"bridge": bridge},
		map[string]any{
			"entities":    entities,
			"capacity":    capacity,
			"headroom":    capacity - entities,
			"utilisation": utilisation,
		},
		at,
	)
}

func applyOutcomePoint(o ApplyOutcome) *write.Point {
	at := o.FinishedAt
	if at.IsZero() {
		at = time.Now()
	}
	duration := int64(0)
	if !o.StartedAt.IsZero() && !o.FinishedAt.IsZero() {
		duration = o.FinishedAt.Sub(o.StartedAt).Milliseconds()
	}
	return write.NewPoint(
		"apply_outcome",
		map[string]string{
			"state":   o.State,
			"dry_run": strconv.FormatBool(o.DryRun),
		},
		map[string]any{
			"bridges":         o.Bridges,
			"entities":        o.Entities,
			"duration_ms":     duration,
			"backup_restored": o.BackupRestored,
			"service_running": o.ServiceRunning,
		},
		at,
	)
}
