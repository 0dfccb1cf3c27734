package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BindingConfig is one declarative binding entry. The target is either bound
// in the compact form ("thingId.propertyName" in Bind) or with explicit
// Thing/Property fields; Target names the control to attach to.
type BindingConfig struct {
	Name string `json:"-"`

	Bind     string `json:"bind,omitempty"`
	Thing    string `json:"thingId,omitempty"`
	Property string `json:"property,omitempty"`

	Target     string `json:"target,omitempty"`
	TwoWay     bool   `json:"twoWay,omitempty"`
	IntervalMs int    `json:"intervalMs,omitempty"`
	Optimistic *bool  `json:"optimistic,omitempty"`
}

// ThingAndProperty resolves the compact shorthand against the explicit
// fields, the shorthand winning when both are present.
func (b BindingConfig) ThingAndProperty() (string, string, error) {
	if b.Bind != "" {
		thingID, property, found := strings.Cut(b.Bind, ".")
		if !found || thingID == "" || property == "" {
			return "", "", fmt.Errorf("malformed binding shorthand '%s', expected 'thingId.propertyName'", b.Bind)
		}

		return thingID, property, nil
	}

	if b.Thing == "" || b.Property == "" {
		return "", "", fmt.Errorf("binding must supply either a shorthand or thing and property")
	}

	return b.Thing, b.Property, nil
}

// Attribute names for bindings declared as markup-style attribute maps.
const (
	BindAttribute     = "data-wot-bind"
	TwoWayAttribute   = "data-wot-two-way"
	IntervalAttribute = "data-wot-interval"
)

// ParseBindingAttributes builds a binding entry from an attribute map. The
// bind attribute is either the compact shorthand or a JSON object; presence
// of the two-way attribute enables write back, and the interval attribute
// overrides the polling interval in milliseconds.
func ParseBindingAttributes(attrs map[string]string) (BindingConfig, error) {
	cfg := BindingConfig{}

	bind, found := attrs[BindAttribute]
	if !found {
		return cfg, fmt.Errorf("missing %s attribute", BindAttribute)
	}

	if strings.HasPrefix(strings.TrimSpace(bind), "{") {
		if err := json.Unmarshal([]byte(bind), &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse %s as json: %w", BindAttribute, err)
		}
	} else {
		cfg.Bind = bind
	}

	if _, found := attrs[TwoWayAttribute]; found {
		cfg.TwoWay = true
	}

	if raw, found := attrs[IntervalAttribute]; found {
		var interval int
		if _, err := fmt.Sscanf(raw, "%d", &interval); err != nil || interval <= 0 {
			return cfg, fmt.Errorf("malformed %s attribute '%s'", IntervalAttribute, raw)
		}
		cfg.IntervalMs = interval
	}

	if _, _, err := cfg.ThingAndProperty(); err != nil {
		return cfg, err
	}

	return cfg, nil
}
