// Package mqtt publishes bridge manager outcomes to an MQTT broker.
//
// Three retained topics are used under the configured prefix:
//
//	<prefix>/status            online/offline, with a Last Will for crashes
//	<prefix>/apply/status      outcome of the latest apply run
//	<prefix>/generate/summary  per-bridge counts from the latest generate
//
// The broker is optional. Callers treat a failed Connect as a warning and
// carry on without notifications.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    logger.Warn("mqtt unavailable", "error", err)
//	} else {
//	    defer client.Close()
//	    _ = client.PublishJSON(client.Topics().ApplyStatus(), payload)
//	}
package mqtt
