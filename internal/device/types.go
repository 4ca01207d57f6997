package device

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/cozylink/internal/protocol"
)

// Device is the identity and capability snapshot of one discovered device.
//
// The id is assigned by the device itself on the first INFO exchange and is
// stable across reconnects even when the network address changes. Capability
// fields (TypeCode, ModelName, Icon, DatapointIDs) are resolved once from
// the catalog at connect time and are immutable for the life of a session.
// Live datapoint values are never stored here; they flow back to callers
// from Query.
type Device struct {
	// Identity, device-assigned.
	ID        string `json:"id"`
	ProductID string `json:"product_id"`

	// Capability metadata from the catalog. Empty until a successful INFO
	// exchange resolves the product id.
	TypeCode     string `json:"type_code"`
	ModelName    string `json:"model_name"`
	Icon         string `json:"icon"`
	DatapointIDs []int  `json:"datapoint_ids"`

	// SoftwareVersion as reported by the device.
	SoftwareVersion string `json:"software_version"`

	// RSSI is the wifi signal strength reported at identification time.
	RSSI int `json:"rssi"`

	// Network address. May change between reconnects without changing ID.
	Host string `json:"host"`
	Port int    `json:"port"`

	// Available is true only between a successful connect and the next
	// disconnect or error.
	Available bool `json:"available"`

	// LastSeen is the time of the last successful exchange.
	LastSeen time.Time `json:"last_seen,omitempty"`
}

// UnknownSoftwareVersion is the placeholder until a device reports one.
const UnknownSoftwareVersion = "Unknown"

// Identified reports whether the device completed an INFO exchange. A
// session can be connected to an unidentified device when the INFO reply
// was missing its did/pid fields.
func (d *Device) Identified() bool {
	return d.ID != ""
}

// Address returns the host:port form of the device's network address.
func (d *Device) Address() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

// Clone returns an independent copy of the device. The datapoint id slice is
// duplicated so callers can never mutate a session's snapshot.
func (d *Device) Clone() Device {
	cpy := *d
	if d.DatapointIDs != nil {
		cpy.DatapointIDs = make([]int, len(d.DatapointIDs))
		copy(cpy.DatapointIDs, d.DatapointIDs)
	}
	return cpy
}

// Session is the handle the registry holds for each device. Implemented by
// session.Session; declared here so the registry and its consumers never
// depend on the transport package.
type Session interface {
	// Device returns a snapshot of the device's identity and capabilities.
	Device() Device

	// Available reports whether a live, healthy connection exists.
	Available() bool

	// Connect dials the device and performs the INFO exchange.
	Connect(ctx context.Context) error

	// Disconnect closes the connection. Idempotent.
	Disconnect() error

	// Query reads the device's current datapoint values.
	Query(ctx context.Context) (protocol.Values, error)

	// Control writes datapoint values, fire-and-forget.
	Control(ctx context.Context, values protocol.Values) error
}
