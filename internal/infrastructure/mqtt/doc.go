// Package mqtt connects the relay operator to an MQTT broker.
//
// The operator publishes its relay status as a retained message so
// dashboards see the current state the moment they subscribe, marks its
// own presence on an online topic backed by a Last Will, and accepts
// start / stop / status commands.
//
// # Topics
//
//	<prefix>/<instance>/status   retained relay status JSON
//	<prefix>/<instance>/online   retained presence, LWT on crash
//	<prefix>/<instance>/events   lifecycle events
//	<prefix>/<instance>/command  {"action":"start"|"stop"|"status"}
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.Instance.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishRetained(client.Topics().Status(), payload)
package mqtt
