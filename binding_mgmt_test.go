package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/logwrap/impl/discard"
	"github.com/shimmeringbee/wotbind/binder"
	"github.com/shimmeringbee/wotbind/config"
	"github.com/shimmeringbee/wotbind/state"
	"github.com/shimmeringbee/wotbind/td"
	"github.com/shimmeringbee/wotbind/thing"
	"github.com/shimmeringbee/wotbind/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func Test_loadBindingConfigurations(t *testing.T) {
	t.Run("loads json files from the directory and ignores other files", func(t *testing.T) {
		dir := t.TempDir()

		require.NoError(t, os.WriteFile(filepath.Join(dir, "lamp.json"), []byte(`{"bind": "urn:thing:lamp.enabled", "twoWay": true}`), 0600))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte(`not a binding`), 0600))

		cfgs, err := loadBindingConfigurations(dir)
		require.NoError(t, err)
		require.Len(t, cfgs, 1)

		assert.Equal(t, "lamp", cfgs[0].Name)
		assert.True(t, cfgs[0].TwoWay)

		thingID, property, err := cfgs[0].ThingAndProperty()
		require.NoError(t, err)
		assert.Equal(t, "urn:thing:lamp", thingID)
		assert.Equal(t, "enabled", property)
	})

	t.Run("errors if a json file does not parse", func(t *testing.T) {
		dir := t.TempDir()

		require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{`), 0600))

		_, err := loadBindingConfigurations(dir)
		assert.Error(t, err)
	})
}

func testBindingMux(t *testing.T) *state.ThingMux {
	doc, err := td.Parse([]byte(`{
		"title": "Lamp",
		"id": "urn:thing:lamp",
		"properties": {
			"enabled": {
				"observable": true,
				"forms": [{"href": "http://lamp.example/enabled", "op": ["readproperty", "writeproperty", "observeproperty"]}]
			}
		}
	}`), "")
	require.NoError(t, err)

	tc := &transport.MockClient{}
	tc.On("Request", mock.Anything, mock.Anything, mock.Anything).Return([]byte("false"), nil).Maybe()
	tc.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).Return(nil, transport.ErrSubscriptionUnsupported).Maybe()

	c := thing.NewClient(doc, tc, thing.Config{
		RetryAttempts: 1,
		PollInterval:  1 * time.Minute,
	}, state.NullEventPublisher, logwrap.New(discard.Discard()))

	mux := state.NewThingMux()
	mux.Add(c)

	return mux
}

func Test_initialiseBindings(t *testing.T) {
	t.Run("restores saved bindings and writes the active set back out", func(t *testing.T) {
		dataDir := t.TempDir()
		bindingsFile := filepath.Join(dataDir, bindingsFileName)

		saved := []binder.Record{
			{ID: "saved", Thing: "urn:thing:lamp", Property: "enabled"},
		}
		data, err := json.Marshal(saved)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(bindingsFile, data, 0600))

		b := binder.NewBinder(testBindingMux(t), state.NullEventPublisher, logwrap.New(discard.Discard()))
		t.Cleanup(b.UnbindAll)

		shutdown, err := initialiseBindings(logwrap.New(discard.Discard()), dataDir, b, nil)
		require.NoError(t, err)
		defer shutdown()

		records := b.Bindings()
		require.Len(t, records, 1)
		assert.Equal(t, "urn:thing:lamp", records[0].Thing)
		assert.Equal(t, "enabled", records[0].Property)

		_, err = os.Stat(bindingsFile)
		assert.NoError(t, err)
	})

	t.Run("a configured binding wins over a saved one for the same property", func(t *testing.T) {
		dataDir := t.TempDir()

		saved := []binder.Record{
			{ID: "saved", Thing: "urn:thing:lamp", Property: "enabled", TwoWay: true},
		}
		data, err := json.Marshal(saved)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dataDir, bindingsFileName), data, 0600))

		b := binder.NewBinder(testBindingMux(t), state.NullEventPublisher, logwrap.New(discard.Discard()))
		t.Cleanup(b.UnbindAll)

		shutdown, err := initialiseBindings(logwrap.New(discard.Discard()), dataDir, b, []config.BindingConfig{
			{Name: "lamp", Thing: "urn:thing:lamp", Property: "enabled"},
		})
		require.NoError(t, err)
		defer shutdown()

		records := b.Bindings()
		require.Len(t, records, 1)
		assert.False(t, records[0].TwoWay)
	})

	t.Run("starts with nothing bound when no configuration or saved state exists", func(t *testing.T) {
		dataDir := t.TempDir()

		b := binder.NewBinder(testBindingMux(t), state.NullEventPublisher, logwrap.New(discard.Discard()))

		shutdown, err := initialiseBindings(logwrap.New(discard.Discard()), dataDir, b, nil)
		require.NoError(t, err)
		defer shutdown()

		assert.Empty(t, b.Bindings())
	})
}
