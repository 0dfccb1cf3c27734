package config

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTransport(t *testing.T) {
	t.Run("errors if json is invalid", func(t *testing.T) {
		data := []byte(`"`)
		tc := TransportConfig{}

		err := json.Unmarshal(data, &tc)
		assert.Error(t, err)
	})

	t.Run("errors if type is unknown", func(t *testing.T) {
		data := []byte(`{"Type":"unknown"}`)
		tc := TransportConfig{}

		err := json.Unmarshal(data, &tc)
		assert.Error(t, err)
	})

	t.Run("http transport", func(t *testing.T) {
		t.Run("parses successfully", func(t *testing.T) {
			data := []byte(`{"Type":"http","Config":{"TimeoutMs":5000}}`)
			tc := TransportConfig{}

			err := json.Unmarshal(data, &tc)
			assert.NoError(t, err)

			httpCfg, ok := tc.Config.(*HTTPTransportConfig)
			assert.True(t, ok)

			assert.Equal(t, 5000, httpCfg.TimeoutMs)
		})

		t.Run("parses successfully without a Config stanza", func(t *testing.T) {
			data := []byte(`{"Type":"http"}`)
			tc := TransportConfig{}

			err := json.Unmarshal(data, &tc)
			assert.NoError(t, err)

			_, ok := tc.Config.(*HTTPTransportConfig)
			assert.True(t, ok)
		})
	})

	t.Run("native transport", func(t *testing.T) {
		t.Run("parses successfully", func(t *testing.T) {
			data := []byte(`{"Type":"native","Config":{"TimeoutMs":5000,"HandshakeTimeoutMs":2000}}`)
			tc := TransportConfig{}

			err := json.Unmarshal(data, &tc)
			assert.NoError(t, err)

			nativeCfg, ok := tc.Config.(*NativeTransportConfig)
			assert.True(t, ok)

			assert.Equal(t, 5000, nativeCfg.TimeoutMs)
			assert.Equal(t, 2000, nativeCfg.HandshakeTimeoutMs)
		})
	})

	t.Run("mqtt transport", func(t *testing.T) {
		t.Run("parses successfully", func(t *testing.T) {
			data := []byte(`{"Type":"mqtt","Config":{"Server":"tcp://broker:1883","Retained":true,"QOS":1,"Credentials":{"Username":"user","Password":"pass"}}}`)
			tc := TransportConfig{}

			err := json.Unmarshal(data, &tc)
			assert.NoError(t, err)

			mqttCfg, ok := tc.Config.(*MQTTTransportConfig)
			assert.True(t, ok)

			assert.Equal(t, "tcp://broker:1883", mqttCfg.Server)
			assert.True(t, mqttCfg.Retained)
			assert.Equal(t, byte(1), mqttCfg.QOS)
			assert.Equal(t, "user", mqttCfg.Credentials.Username)
		})
	})
}

func TestParseThing(t *testing.T) {
	t.Run("parses a thing with an inline document and transport", func(t *testing.T) {
		data := []byte(`{"Document":{"title":"Lamp","id":"urn:lamp"},"Transport":{"Type":"http","Config":{}},"PollIntervalMs":2500,"Retry":{"Attempts":5}}`)
		tc := ThingConfig{}

		err := json.Unmarshal(data, &tc)
		assert.NoError(t, err)

		assert.NotNil(t, tc.Document)
		assert.Equal(t, "http", tc.Transport.Type)
		assert.Equal(t, 2500, tc.PollIntervalMs)
		assert.Equal(t, 5, tc.Retry.Attempts)
	})

	t.Run("parses a thing with only a url, leaving transport unset", func(t *testing.T) {
		data := []byte(`{"URL":"http://device.local/td"}`)
		tc := ThingConfig{}

		err := json.Unmarshal(data, &tc)
		assert.NoError(t, err)

		assert.Equal(t, "http://device.local/td", tc.URL)
		assert.Nil(t, tc.Transport)
	})
}
