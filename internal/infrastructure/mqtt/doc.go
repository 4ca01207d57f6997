// Package mqtt publishes CozyLink device state to an MQTT broker and
// accepts control writes back.
//
// Topic layout:
//
//	cozylink/device/{id}/state         retained, datapoint values
//	cozylink/device/{id}/availability  retained, "online"/"offline"
//	cozylink/device/{id}/set           inbound datapoint writes
//	cozylink/system/status             retained, service status + LWT
//	cozylink/system/scan               inbound discovery trigger
//
// The client reconnects automatically with exponential backoff and
// restores its subscriptions; a Last Will on the status topic lets
// consumers distinguish a crash from a graceful shutdown.
package mqtt
