package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/wotbind/binder"
	"github.com/shimmeringbee/wotbind/config"
)

const bindingsFileName = "bindings.json"
const bindingsSaveInterval = 1 * time.Minute
const DefaultFilePermissions = 0600

func loadBindingConfigurations(dir string) ([]config.BindingConfig, error) {
	if err := os.MkdirAll(dir, DefaultDirectoryPermissions); err != nil {
		return nil, fmt.Errorf("failed to ensure binding configuration directory exists: %w", err)
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory listing for binding configurations: %w", err)
	}

	var retCfgs []config.BindingConfig

	for _, file := range files {
		if !strings.HasSuffix(file.Name(), ".json") {
			continue
		}

		fullPath := filepath.Join(dir, file.Name())
		data, err := os.ReadFile(fullPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read binding configuration file '%s': %w", fullPath, err)
		}

		cfg := config.BindingConfig{
			Name: strings.TrimSuffix(file.Name(), filepath.Ext(file.Name())),
		}

		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse binding configuration file '%s': %w", fullPath, err)
		}

		retCfgs = append(retCfgs, cfg)
	}

	return retCfgs, nil
}

// initialiseBindings binds the configured entries plus any saved at runtime,
// deduplicated on thing and property with the configuration winning, then
// starts the periodic save of the active set.
func initialiseBindings(l logwrap.Logger, dataDir string, b *binder.Binder, cfgs []config.BindingConfig) (func(), error) {
	bindingsFile := filepath.Join(dataDir, bindingsFileName)

	saved, err := loadSavedBindings(bindingsFile)
	if err != nil {
		return func() {}, fmt.Errorf("failed to load saved bindings: %w", err)
	}

	declared := map[string]bool{}

	for _, cfg := range cfgs {
		if thingID, property, err := cfg.ThingAndProperty(); err == nil {
			declared[thingID+"."+property] = true
		}
	}

	b.BindAll(cfgs, nil)

	for _, record := range saved {
		if declared[record.Thing+"."+record.Property] {
			continue
		}

		if _, err := b.BindDeclared(config.BindingConfig{
			Thing:      record.Thing,
			Property:   record.Property,
			TwoWay:     record.TwoWay,
			IntervalMs: record.IntervalMs,
			Optimistic: record.Optimistic,
		}); err != nil {
			l.LogWarn(context.Background(), "Failed to restore saved binding.", logwrap.Err(err),
				logwrap.Datum("thing", record.Thing), logwrap.Datum("property", record.Property))
		}
	}

	if err := saveBindings(bindingsFile, b); err != nil {
		return func() {}, fmt.Errorf("failed initial save of bindings: %w", err)
	}

	shutCh := make(chan struct{}, 1)

	go func() {
		t := time.NewTicker(bindingsSaveInterval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				if err := saveBindings(bindingsFile, b); err != nil {
					l.LogError(context.Background(), "Failed to periodically save bindings.", logwrap.Err(err))
				}
			case <-shutCh:
				if err := saveBindings(bindingsFile, b); err != nil {
					l.LogError(context.Background(), "Failed to save bindings at shutdown.", logwrap.Err(err))
				}
				return
			}
		}
	}()

	return func() {
		shutCh <- struct{}{}
	}, nil
}

func loadSavedBindings(file string) ([]binder.Record, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, err
	}

	var records []binder.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}

	return records, nil
}

func saveBindings(file string, b *binder.Binder) error {
	data, err := json.Marshal(b.Bindings())
	if err != nil {
		return err
	}

	return safeWriteFile(file, data, DefaultFilePermissions)
}
