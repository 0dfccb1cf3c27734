package config

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

type InterfaceConfig struct {
	Name   string `json:"-"`
	Type   string
	Config any
}

func (i *InterfaceConfig) UnmarshalJSON(data []byte) error {
	if result := gjson.GetBytes(data, "Type"); !result.Exists() {
		return fmt.Errorf("failed to find interface type information")
	} else {
		i.Type = result.String()
	}

	switch i.Type {
	case "http":
		i.Config = &HTTPInterfaceConfig{}
	default:
		return fmt.Errorf("unknown interface configuration type: %s", i.Type)
	}

	if result := gjson.GetBytes(data, "Config"); result.Exists() {
		return json.Unmarshal([]byte(result.Raw), i.Config)
	} else {
		return fmt.Errorf("unable to find Config stanza: %s", i.Type)
	}
}

type HTTPInterfaceConfig struct {
	Port        int
	EnabledAPIs []string

	Auth *AuthConfig
}

// AuthConfig selects the authentication provider guarding an http interface.
// An absent stanza, or Type "null", leaves the interface unauthenticated.
type AuthConfig struct {
	Type string

	SystemIdentifier string
	TTLMinutes       int
	KeyIdentifier    string
	PrivateKey       string

	UserHeader string
}
