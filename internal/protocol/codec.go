package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Command identifies a wire command kind.
type Command int

// Wire command kinds understood by the device firmware.
const (
	// CmdInfo requests the device identity block (did, pid, sv, ...).
	CmdInfo Command = 0

	// CmdQuery requests the current value of all datapoints.
	CmdQuery Command = 2

	// CmdSet writes datapoint values. Devices send no reply.
	CmdSet Command = 3
)

// protocolVersion is the fixed "pv" field value. The firmware rejects
// anything else.
const protocolVersion = 0

// frameDelimiter terminates every TCP message. UDP datagrams are unframed.
var frameDelimiter = []byte("\r\n")

// Message is the JSON envelope shared by requests and responses.
//
// Example exchange:
//
//	send:    {"cmd":0,"pv":0,"sn":"1636463553873","msg":{}}
//	receive: {"cmd":0,"pv":0,"sn":"1636463553873","msg":{"did":"629...","pid":"e2s64v",...},"res":0}
type Message struct {
	Cmd Command         `json:"cmd"`
	PV  int             `json:"pv"`
	SN  string          `json:"sn"`
	Msg json.RawMessage `json:"msg,omitempty"`
	Res *int            `json:"res,omitempty"`
}

// Request describes an outgoing command before encoding.
type Request struct {
	// Cmd selects the message body shape.
	Cmd Command

	// SN is the sequence token echoed by the device's reply.
	SN string

	// Values carries datapoint writes for CmdSet; ignored otherwise.
	Values Values
}

// Encode serialises a request as a CRLF-terminated TCP frame.
//
// The body shape depends on the command kind:
//
//	INFO:  {}
//	QUERY: {"attr":[0]}
//	SET:   {"attr":[<dpIds>],"data":{"<dpId>":<value>,...}}
//
// An unknown command kind is the only encoding failure.
func Encode(req Request) ([]byte, error) {
	data, err := EncodeDatagram(req)
	if err != nil {
		return nil, err
	}
	return append(data, frameDelimiter...), nil
}

// EncodeDatagram serialises a request without the CRLF frame delimiter,
// as sent in UDP discovery probes.
func EncodeDatagram(req Request) ([]byte, error) {
	body, err := encodeBody(req)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(Message{
		Cmd: req.Cmd,
		PV:  protocolVersion,
		SN:  req.SN,
		Msg: body,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodeFailed, err)
	}
	return data, nil
}

// encodeBody builds the "msg" object for the command kind.
func encodeBody(req Request) (json.RawMessage, error) {
	switch req.Cmd {
	case CmdInfo:
		return json.RawMessage(`{}`), nil

	case CmdQuery:
		return json.RawMessage(`{"attr":[0]}`), nil

	case CmdSet:
		attr := make([]int, 0, len(req.Values))
		for id := range req.Values {
			attr = append(attr, id)
		}
		sort.Ints(attr)

		body, err := json.Marshal(setBody{Attr: attr, Data: req.Values})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEncodeFailed, err)
		}
		return body, nil

	default:
		return nil, fmt.Errorf("%w: cmd %d", ErrUnknownCommand, req.Cmd)
	}
}

// setBody is the SET request body.
type setBody struct {
	Attr []int  `json:"attr"`
	Data Values `json:"data"`
}

// Decode parses one message from a received buffer. A trailing CRLF (or bare
// LF) is tolerated so both framed TCP lines and raw datagrams decode.
func Decode(data []byte) (*Message, error) {
	data = bytes.TrimRight(data, "\r\n")
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrDecodeFailed)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	return &msg, nil
}

// Info is the device identity block carried by INFO replies.
//
// Sessions consume did, pid, and sv; rssi is recorded as telemetry; the
// remaining fields are decoded for completeness.
type Info struct {
	DeviceID        string `json:"did"`
	DeviceType      string `json:"dtp"`
	ProductID       string `json:"pid"`
	MAC             string `json:"mac"`
	IP              string `json:"ip"`
	RSSI            int    `json:"rssi"`
	SoftwareVersion string `json:"sv"`
	HardwareVersion string `json:"hv"`
}

// ParseInfo decodes the identity block from an INFO reply's msg field.
func ParseInfo(m *Message) (*Info, error) {
	if m == nil || len(m.Msg) == 0 {
		return nil, fmt.Errorf("%w: missing msg body", ErrDecodeFailed)
	}

	var info Info
	if err := json.Unmarshal(m.Msg, &info); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	return &info, nil
}

// ParseQueryData extracts the datapoint map from a QUERY reply's msg field.
// A reply without a data object yields an empty map, matching the device's
// behaviour for unsupported queries.
func ParseQueryData(m *Message) (Values, error) {
	if m == nil || len(m.Msg) == 0 {
		return Values{}, nil
	}

	var body struct {
		Data Values `json:"data"`
	}
	if err := json.Unmarshal(m.Msg, &body); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	if body.Data == nil {
		return Values{}, nil
	}
	return body.Data, nil
}
