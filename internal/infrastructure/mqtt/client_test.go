package mqtt

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/nerrad567/cozylink/internal/infrastructure/config"
)

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"DeviceState", topics.DeviceState("629000abc123"), "cozylink/device/629000abc123/state"},
		{"DeviceAvailability", topics.DeviceAvailability("629000abc123"), "cozylink/device/629000abc123/availability"},
		{"DeviceSet", topics.DeviceSet("629000abc123"), "cozylink/device/629000abc123/set"},
		{"AllDeviceSets", topics.AllDeviceSets(), "cozylink/device/+/set"},
		{"SystemStatus", topics.SystemStatus(), "cozylink/system/status"},
		{"SystemScan", topics.SystemScan(), "cozylink/system/scan"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestDeviceIDFromTopic(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"cozylink/device/629000abc123/set", "629000abc123"},
		{"cozylink/device/629000abc123/state", "629000abc123"},
		{"cozylink/system/status", ""},
		{"other/device/x/set", ""},
		{"cozylink/device", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := DeviceIDFromTopic(tt.topic); got != tt.want {
			t.Errorf("DeviceIDFromTopic(%q) = %q, want %q", tt.topic, got, tt.want)
		}
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "broker.local",
			Port:     1883,
			ClientID: "cozylink-test",
		},
		Auth: config.MQTTAuthConfig{
			Username: "user",
			Password: "pass",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     60,
		},
	}

	opts := buildClientOptions(cfg)
	if len(opts.Servers) != 1 {
		t.Fatalf("servers = %d, want 1", len(opts.Servers))
	}
	if opts.Servers[0].Scheme != "tcp" {
		t.Errorf("scheme = %q, want tcp", opts.Servers[0].Scheme)
	}
	if opts.Servers[0].Host != "broker.local:1883" {
		t.Errorf("host = %q", opts.Servers[0].Host)
	}
	if opts.ClientID != "cozylink-test" {
		t.Errorf("client id = %q", opts.ClientID)
	}
	if opts.Username != "user" {
		t.Errorf("username = %q", opts.Username)
	}
	if !opts.AutoReconnect {
		t.Error("auto reconnect disabled")
	}
}

func TestBuildClientOptionsTLS(t *testing.T) {
	cfg := config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host: "broker.local",
			Port: 8883,
			TLS:  true,
		},
	}

	opts := buildClientOptions(cfg)
	if opts.Servers[0].Scheme != "ssl" {
		t.Errorf("scheme = %q, want ssl", opts.Servers[0].Scheme)
	}
	if opts.TLSConfig == nil {
		t.Fatal("TLS config not set")
	}
}

func TestStatusPayloads(t *testing.T) {
	for name, payload := range map[string]string{
		"online":  buildOnlinePayload("cozylink-test"),
		"offline": buildOfflinePayload("cozylink-test"),
	} {
		var decoded struct {
			Status    string `json:"status"`
			ClientID  string `json:"client_id"`
			Timestamp string `json:"timestamp"`
		}
		if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
			t.Fatalf("%s payload is not valid JSON: %v", name, err)
		}
		if decoded.Status != name {
			t.Errorf("%s payload status = %q", name, decoded.Status)
		}
		if decoded.ClientID != "cozylink-test" {
			t.Errorf("%s payload client_id = %q", name, decoded.ClientID)
		}
	}

	if !strings.Contains(buildOfflinePayload("x"), "graceful_shutdown") {
		t.Error("graceful offline payload missing reason")
	}
}

func TestPublishValidation(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}

	if err := c.Publish("", []byte("x"), 0, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Publish("cozylink/system/status", []byte("x"), 3, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad qos error = %v, want ErrInvalidQoS", err)
	}

	huge := make([]byte, maxPayloadSize+1)
	if err := c.Publish("cozylink/system/status", huge, 0, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("oversized payload error = %v, want ErrPublishFailed", err)
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}

	if err := c.Subscribe("", 0, func(string, []byte) error { return nil }); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe("t", 5, func(string, []byte) error { return nil }); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad qos error = %v, want ErrInvalidQoS", err)
	}
	if err := c.Subscribe("t", 0, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v, want ErrSubscribeFailed", err)
	}
}
