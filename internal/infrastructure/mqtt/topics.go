package mqtt

import "strings"

// DefaultTopicPrefix is used when the configuration leaves the prefix empty.
const DefaultTopicPrefix = "hkbridge"

// Topics builds topic names under one prefix.
//
//	topics := mqtt.NewTopics("hkbridge")
//	topics.ApplyStatus() // "hkbridge/apply/status"
type Topics struct {
	prefix string
}

// NewTopics returns topic builders for prefix. Surrounding slashes are trimmed.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Status is the online/offline topic, also used for the Last Will.
func (t Topics) Status() string {
	return t.prefix + "/status"
}

// ApplyStatus carries the outcome of the latest apply run.
func (t Topics) ApplyStatus() string {
	return t.prefix + "/apply/status"
}

// GenerateSummary carries per-bridge counts from the latest generate.
func (t Topics) GenerateSummary() string {
	return t.prefix + "/generate/summary"
}
