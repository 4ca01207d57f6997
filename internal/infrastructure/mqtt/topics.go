package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the base for every CozyLink topic.
const TopicPrefix = "cozylink"

// Topics provides builders for CozyLink MQTT topics. Using these helpers
// keeps topic naming consistent between publishers and subscribers.
//
//	topics := mqtt.Topics{}
//	topics.DeviceState("629000abc123")
//	// Returns: "cozylink/device/629000abc123/state"
type Topics struct{}

// DeviceState returns the retained per-device state topic.
//
// Example: cozylink/device/629000abc123/state
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/state", TopicPrefix, deviceID)
}

// DeviceAvailability returns the retained per-device availability topic.
//
// Example: cozylink/device/629000abc123/availability
func (Topics) DeviceAvailability(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/availability", TopicPrefix, deviceID)
}

// DeviceSet returns the topic on which external services write datapoint
// values to a device.
//
// Example: cozylink/device/629000abc123/set
func (Topics) DeviceSet(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/set", TopicPrefix, deviceID)
}

// AllDeviceSets returns the pattern matching every device set topic.
//
// Pattern: cozylink/device/+/set
func (Topics) AllDeviceSets() string {
	return fmt.Sprintf("%s/device/+/set", TopicPrefix)
}

// SystemStatus returns the service status topic used for the online
// announcement and the LWT.
//
// Example: cozylink/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", TopicPrefix)
}

// SystemScan returns the topic that triggers an immediate discovery pass.
//
// Example: cozylink/system/scan
func (Topics) SystemScan() string {
	return fmt.Sprintf("%s/system/scan", TopicPrefix)
}

// DeviceIDFromTopic extracts the device id from a per-device topic.
// Returns "" when the topic does not follow the cozylink/device/{id}/...
// shape.
func DeviceIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 4 || parts[0] != TopicPrefix || parts[1] != "device" {
		return ""
	}
	return parts[2]
}
