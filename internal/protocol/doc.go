// Package protocol implements the CozyLife wire codec.
//
// Devices speak plaintext JSON over TCP (port 5555) and UDP (discovery,
// port 6095). Every message is a single JSON envelope:
//
//	{"cmd":<kind>,"pv":0,"sn":"<token>","msg":{...}}
//
// TCP frames are terminated by CRLF; discovery datagrams are bare JSON.
// Three command kinds exist: INFO (0) returns the identity block, QUERY (2)
// returns current datapoint values, SET (3) writes datapoints and gets no
// reply.
//
// # Correlation
//
// The protocol has no multiplexing. A response belongs to a request only if
// its "sn" token matches; anything else is a stale reply from an earlier
// request (possibly under a previous connection) and must be discarded
// without error. NextSN() issues strictly increasing tokens so that test
// never misfires.
//
// # Datapoints
//
// Device state is a map of numbered datapoints with fixed ranges (power,
// mode, colour temperature, brightness, hue, saturation). The Values type
// carries them with integer keys and validates writes against the documented
// ranges before they reach the wire.
package protocol
