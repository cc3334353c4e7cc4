package influxdb

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/homekit-bridge-manager/internal/infrastructure/config"
)

func fields(p *write.Point) map[string]any {
	m := make(map[string]any)
	for _, f := range p.FieldList() {
		m[f.Key] = f.Value
	}
	return m
}

func tags(p *write.Point) map[string]string {
	m := make(map[string]string)
	for _, t := range p.TagList() {
		m[t.Key] = t.Value
	}
	return m
}

func TestBridgeCapacityPoint(t *testing.T) {
	at := time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)
	p := bridgeCapacityPoint("First Floor", 120, 150, at)

	if p.Name() != "bridge_capacity" {
		t.Errorf("Name() = %q", p.Name())
	}
	if tags(p)["bridge"] != "First Floor" {
		t.Errorf("tags = %v", tags(p))
	}
	if !p.Time().Equal(at) {
		t.Errorf("Time() = %v, want %v", p.Time(), at)
	}

	f := fields(p)
	// write.NewPoint converts ints to int64.
	if f["entities"] != int64(120) || f["headroom"] != int64(30) {
		t.Errorf("fields = %v", f)
	}
	if f["utilisation"] != 0.8 {
		t.Errorf("utilisation = %v, want 0.8", f["utilisation"])
	}
}

func TestApplyOutcomePoint(t *testing.T) {
	start := time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)
	p := applyOutcomePoint(ApplyOutcome{
		State:          "failed",
		Bridges:        2,
		Entities:       140,
		BackupRestored: true,
		ServiceRunning: true,
		StartedAt:      start,
		FinishedAt:     start.Add(1500 * time.Millisecond),
	})

	if tags(p)["state"] != "failed" || tags(p)["dry_run"] != "false" {
		t.Errorf("tags = %v", tags(p))
	}
	f := fields(p)
	if f["duration_ms"] != int64(1500) || f["backup_restored"] != true {
		t.Errorf("fields = %v", f)
	}
}

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestWrites_NoOpWhenDisconnected(t *testing.T) {
	c := &Client{}

	// Must not panic with a nil write API.
	c.WriteBridgeCapacity("First Floor", 1, 150, time.Now())
	c.WriteApplyOutcome(ApplyOutcome{State: "restarted"})
	c.WritePoint("x", nil, map[string]any{"v": 1})
	c.Flush()

	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

// TestConnect_Server needs a running InfluxDB; set HKBRIDGE_TEST_INFLUXDB_URL
// and HKBRIDGE_TEST_INFLUXDB_TOKEN to run it.
func TestConnect_Server(t *testing.T) {
	url := os.Getenv("HKBRIDGE_TEST_INFLUXDB_URL")
	if url == "" {
		t.Skip("HKBRIDGE_TEST_INFLUXDB_URL not set")
	}

	c, err := Connect(config.InfluxDBConfig{
		Enabled: true,
		URL:     url,
		Token:   os.Getenv("HKBRIDGE_TEST_INFLUXDB_TOKEN"),
		Org:     "home",
		Bucket:  "hkbridge",
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	c.SetOnError(func(err error) { t.Errorf("async write error: %v", err) })
	c.WriteBridgeCapacity("First Floor", 10, 150, time.Now())
	c.Flush()

	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
}
