package config

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// ThingConfig describes one thing to consume: where its description comes
// from (a URL or an inline document) and the transport used to interact with
// it. A missing Transport stanza means plain http.
type ThingConfig struct {
	Name string `json:"-"`

	URL      string
	Document json.RawMessage

	Transport *TransportConfig

	PollIntervalMs int
	Retry          *RetryConfig
}

type RetryConfig struct {
	Attempts    int
	BaseDelayMs int
	MaxDelayMs  int
}

type TransportConfig struct {
	Type   string
	Config any
}

func (t *TransportConfig) UnmarshalJSON(data []byte) error {
	if result := gjson.GetBytes(data, "Type"); !result.Exists() {
		return fmt.Errorf("failed to find transport type information")
	} else {
		t.Type = result.String()
	}

	switch t.Type {
	case "http":
		t.Config = &HTTPTransportConfig{}
	case "native":
		t.Config = &NativeTransportConfig{}
	case "mqtt":
		t.Config = &MQTTTransportConfig{}
	default:
		return fmt.Errorf("unknown transport configuration type: %s", t.Type)
	}

	if result := gjson.GetBytes(data, "Config"); result.Exists() {
		return json.Unmarshal([]byte(result.Raw), t.Config)
	}

	return nil
}

type HTTPTransportConfig struct {
	TimeoutMs int
}

type NativeTransportConfig struct {
	TimeoutMs          int
	HandshakeTimeoutMs int
}

type MQTTTransportConfig struct {
	Server string

	TLS         *MQTTTLS
	Credentials *MQTTCredentials

	Retained      bool
	QOS           byte
	ReadTimeoutMs int
}

type MQTTTLS struct {
	IgnoreSystemRootCertificates bool
	SkipCertificateVerification  bool
	Key                          string
	Cert                         string
	CACert                       string
}

type MQTTCredentials struct {
	Username string
	Password string
}
