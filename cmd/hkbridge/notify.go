package main

import (
	"time"

	"github.com/nerrad567/homekit-bridge-manager/internal/apply"
	"github.com/nerrad567/homekit-bridge-manager/internal/assign"
	"github.com/nerrad567/homekit-bridge-manager/internal/history"
	"github.com/nerrad567/homekit-bridge-manager/internal/infrastructure/influxdb"
	"github.com/nerrad567/homekit-bridge-manager/internal/infrastructure/logging"
	"github.com/nerrad567/homekit-bridge-manager/internal/infrastructure/mqtt"
)

// notifier fans outcomes out to MQTT and InfluxDB when they are configured.
// Either side may be nil; failures are logged and never fail the command.
type notifier struct {
	mqtt   *mqtt.Client
	influx *influxdb.Client
	log    *logging.Logger
}

type bridgeSummary struct {
	Name     string `json:"name"`
	Entities int    `json:"entities"`
	Capacity int    `json:"capacity"`
	Over     bool   `json:"over"`
}

type generateSummary struct {
	Bridges     []bridgeSummary `json:"bridges"`
	Assigned    int             `json:"assigned"`
	Unassigned  int             `json:"unassigned"`
	Excluded    int             `json:"excluded"`
	GeneratedAt string          `json:"generated_at"`
}

type applyStatus struct {
	RunID            string `json:"run_id"`
	DryRun           bool   `json:"dry_run"`
	State            string `json:"state"`
	LastState        string `json:"last_state"`
	FailedTransition string `json:"failed_transition,omitempty"`
	BackupPath       string `json:"backup_path,omitempty"`
	BackupRestored   bool   `json:"backup_restored"`
	ServiceRunning   bool   `json:"service_running"`
	Entities         int    `json:"entities"`
	Error            string `json:"error,omitempty"`
	FinishedAt       string `json:"finished_at"`
}

func (a *app) connectNotifier() *notifier {
	n := &notifier{log: a.log}

	if a.cfg.MQTT.Enabled {
		c, err := mqtt.Connect(a.cfg.MQTT)
		if err != nil {
			a.log.Warn("mqtt unavailable, continuing without notifications", "error", err)
		} else {
			c.SetLogger(a.log)
			n.mqtt = c
		}
	}

	if a.cfg.InfluxDB.Enabled {
		c, err := influxdb.Connect(a.cfg.InfluxDB)
		if err != nil {
			a.log.Warn("influxdb unavailable, continuing without metrics", "error", err)
		} else {
			c.SetOnError(func(err error) {
				a.log.Warn("influxdb write failed", "error", err)
			})
			n.influx = c
		}
	}

	return n
}

func (n *notifier) generated(res *assign.Result, at time.Time) {
	summary := generateSummary{
		Assigned:    res.Artifact.Total(),
		Unassigned:  len(res.Unassigned),
		Excluded:    res.Excluded(),
		GeneratedAt: at.UTC().Format(time.RFC3339),
	}
	for _, name := range res.Artifact.Names() {
		count := res.Artifact.Count(name)
		summary.Bridges = append(summary.Bridges, bridgeSummary{
			Name:     name,
			Entities: count,
			Capacity: res.Capacity,
			Over:     count > res.Capacity,
		})
		if n.influx != nil {
			n.influx.WriteBridgeCapacity(name, count, res.Capacity, at)
		}
	}

	if n.mqtt != nil {
		if err := n.mqtt.PublishJSON(n.mqtt.Topics().GenerateSummary(), summary); err != nil {
			n.log.Warn("publishing generate summary", "error", err)
		}
	}
}

func (n *notifier) applied(rep *apply.Report) {
	if n.mqtt != nil {
		status := applyStatus{
			RunID:            rep.RunID,
			DryRun:           rep.DryRun,
			State:            string(rep.State),
			LastState:        string(rep.LastState),
			FailedTransition: rep.FailedTransition,
			BackupPath:       rep.BackupPath,
			BackupRestored:   rep.BackupRestored,
			ServiceRunning:   rep.ServiceRunning,
			Entities:         rep.EntityCount(),
			Error:            rep.Error,
			FinishedAt:       rep.FinishedAt.UTC().Format(time.RFC3339),
		}
		if err := n.mqtt.PublishJSON(n.mqtt.Topics().ApplyStatus(), status); err != nil {
			n.log.Warn("publishing apply status", "error", err)
		}
	}

	if n.influx != nil {
		n.influx.WriteApplyOutcome(influxdb.ApplyOutcome{
			State:          string(rep.State),
			DryRun:         rep.DryRun,
			Bridges:        history.FromReport(rep).Bridges,
			Entities:       rep.EntityCount(),
			BackupRestored: rep.BackupRestored,
			ServiceRunning: rep.ServiceRunning,
			StartedAt:      rep.StartedAt,
			FinishedAt:     rep.FinishedAt,
		})
	}
}

func (n *notifier) Close() {
	if n.influx != nil {
		n.influx.Close() //nolint:errcheck // always nil
	}
	if n.mqtt != nil {
		n.mqtt.Close() //nolint:errcheck // always nil
	}
}
