package mqtt

import "fmt"

// DefaultTopicPrefix is the root of every operator topic.
const DefaultTopicPrefix = "relayoperator"

// Topics builds the MQTT topics of one operator instance.
//
//	topics := mqtt.NewTopics("relayoperator", "lion-01")
//	topics.Status()  // "relayoperator/lion-01/status"
type Topics struct {
	Prefix   string
	Instance string
}

// NewTopics creates a topic builder. An empty prefix uses DefaultTopicPrefix.
func NewTopics(prefix, instance string) Topics {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix, Instance: instance}
}

func (t Topics) base() string {
	return fmt.Sprintf("%s/%s", t.Prefix, t.Instance)
}

// Status is the retained relay status topic.
//
// Example: relayoperator/lion-01/status
func (t Topics) Status() string {
	return t.base() + "/status"
}

// Online is the retained operator presence topic, also used for the LWT.
//
// Example: relayoperator/lion-01/online
func (t Topics) Online() string {
	return t.base() + "/online"
}

// Command is the topic the operator accepts relay commands on.
//
// Example: relayoperator/lion-01/command
func (t Topics) Command() string {
	return t.base() + "/command"
}

// Events carries every relay lifecycle event, not retained.
//
// Example: relayoperator/lion-01/events
func (t Topics) Events() string {
	return t.base() + "/events"
}
