package config

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

type LoggingConfig struct {
	Name   string `json:"-"`
	Type   string
	Config any
}

func (l *LoggingConfig) UnmarshalJSON(data []byte) error {
	if result := gjson.GetBytes(data, "Type"); !result.Exists() {
		return fmt.Errorf("failed to find logging type information")
	} else {
		l.Type = result.String()
	}

	switch l.Type {
	case "stdout":
		l.Config = &StdoutLogging{}
	case "file":
		l.Config = &FileLogging{}
	default:
		return fmt.Errorf("unknown logging configuration type: %s", l.Type)
	}

	if result := gjson.GetBytes(data, "Config"); result.Exists() {
		return json.Unmarshal([]byte(result.Raw), l.Config)
	} else {
		return fmt.Errorf("unable to find Config stanza: %s", l.Type)
	}
}

type BaseLogging struct {
	Level string

	NegateSubsystems bool
	Subsystems       []string
}

type StdoutLogging struct {
	BaseLogging
}

type FileLogging struct {
	BaseLogging

	Filename string
	Size     int
	Count    int
	Compress bool
}
