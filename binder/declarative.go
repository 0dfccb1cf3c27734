package binder

import (
	"context"
	"fmt"
	"time"

	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/wotbind/config"
	"github.com/shimmeringbee/wotbind/control"
)

// BindAll activates a batch of declarative binding entries. Targets are
// resolved by name from the supplied map; an entry without a target name is
// given a fresh in-memory value. Entries that fail to parse or bind are
// logged and skipped, so one bad entry never aborts the batch.
func (b *Binder) BindAll(cfgs []config.BindingConfig, targets map[string]control.Target) []string {
	var ids []string

	for _, cfg := range cfgs {
		id, err := b.bindEntry(cfg, targets)
		if err != nil {
			b.logger.LogWarn(context.Background(), "Skipping binding entry.",
				logwrap.Datum("name", cfg.Name), logwrap.Err(err))
			continue
		}

		ids = append(ids, id)
	}

	return ids
}

// BindAttributes activates a binding declared as a markup-style attribute
// map on the given target.
func (b *Binder) BindAttributes(attrs map[string]string, target control.Target) (string, error) {
	cfg, err := config.ParseBindingAttributes(attrs)
	if err != nil {
		return "", err
	}

	return b.bindConfig(cfg, target)
}

// BindDeclared activates a single declarative entry against a fresh
// in-memory value target, for bindings created at runtime.
func (b *Binder) BindDeclared(cfg config.BindingConfig) (string, error) {
	return b.bindConfig(cfg, control.NewValue())
}

func (b *Binder) bindEntry(cfg config.BindingConfig, targets map[string]control.Target) (string, error) {
	var target control.Target

	if cfg.Target != "" {
		named, found := targets[cfg.Target]
		if !found {
			return "", fmt.Errorf("unknown target '%s'", cfg.Target)
		}

		target = named
	} else {
		target = control.NewValue()
	}

	return b.bindConfig(cfg, target)
}

func (b *Binder) bindConfig(cfg config.BindingConfig, target control.Target) (string, error) {
	thingID, property, err := cfg.ThingAndProperty()
	if err != nil {
		return "", err
	}

	return b.Bind(Binding{
		Thing:        thingID,
		Property:     property,
		Target:       target,
		TwoWay:       cfg.TwoWay,
		PollInterval: time.Duration(cfg.IntervalMs) * time.Millisecond,
		Optimistic:   cfg.Optimistic,
	})
}
