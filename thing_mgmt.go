package main

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	url2 "net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/logwrap/impl/nest"
	"github.com/shimmeringbee/wotbind/config"
	"github.com/shimmeringbee/wotbind/metric"
	"github.com/shimmeringbee/wotbind/state"
	"github.com/shimmeringbee/wotbind/td"
	"github.com/shimmeringbee/wotbind/thing"
	"github.com/shimmeringbee/wotbind/transport"
)

type StartedThing struct {
	Name     string
	Shutdown func()
}

const DefaultDocumentFetchTimeout = 30 * time.Second

func loadThingConfigurations(dir string) ([]config.ThingConfig, error) {
	if err := os.MkdirAll(dir, DefaultDirectoryPermissions); err != nil {
		return nil, fmt.Errorf("failed to ensure thing configuration directory exists: %w", err)
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory listing for thing configurations: %w", err)
	}

	var retCfgs []config.ThingConfig

	for _, file := range files {
		if !strings.HasSuffix(file.Name(), ".json") {
			continue
		}

		fullPath := filepath.Join(dir, file.Name())
		data, err := os.ReadFile(fullPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read thing configuration file '%s': %w", fullPath, err)
		}

		cfg := config.ThingConfig{
			Name: strings.TrimSuffix(file.Name(), filepath.Ext(file.Name())),
		}

		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse thing configuration file '%s': %w", fullPath, err)
		}

		retCfgs = append(retCfgs, cfg)
	}

	return retCfgs, nil
}

func startThings(cfgs []config.ThingConfig, mux *state.ThingMux, bus *state.EventBus, operations *metric.Operations, l logwrap.Logger) ([]StartedThing, error) {
	var retThings []StartedThing

	for _, cfg := range cfgs {
		if started, err := startThing(cfg, mux, bus, operations, l); err != nil {
			return retThings, fmt.Errorf("failed to start thing '%s': %w", cfg.Name, err)
		} else {
			retThings = append(retThings, started)
		}
	}

	return retThings, nil
}

func startThing(cfg config.ThingConfig, mux *state.ThingMux, bus *state.EventBus, operations *metric.Operations, l logwrap.Logger) (StartedThing, error) {
	wl := logwrap.New(nest.Wrap(l))
	wl.AddOptionsToLogger(logwrap.Datum("thing", cfg.Name), logwrap.Source("thing"))

	doc, err := loadDocument(cfg)
	if err != nil {
		return StartedThing{}, err
	}

	tc, shutdown, err := buildTransport(cfg, wl)
	if err != nil {
		return StartedThing{}, err
	}

	clientCfg := thing.Config{
		PollInterval: time.Duration(cfg.PollIntervalMs) * time.Millisecond,
	}

	if cfg.Retry != nil {
		clientCfg.RetryAttempts = cfg.Retry.Attempts
		clientCfg.RetryBaseDelay = time.Duration(cfg.Retry.BaseDelayMs) * time.Millisecond
		clientCfg.RetryMaxDelay = time.Duration(cfg.Retry.MaxDelayMs) * time.Millisecond
	}

	c := thing.NewClient(doc, tc, clientCfg, bus, wl)
	c.Metrics = operations

	mux.Add(c)

	wl.LogInfo(context.Background(), "Thing consumed.", logwrap.Datum("id", doc.ID), logwrap.Datum("title", doc.Title))

	return StartedThing{Name: cfg.Name, Shutdown: shutdown}, nil
}

// loadDocument resolves the thing description, either inline from the
// configuration or fetched from its URL.
func loadDocument(cfg config.ThingConfig) (*td.Document, error) {
	if len(cfg.Document) > 0 {
		return td.Parse(cfg.Document, cfg.URL)
	}

	if cfg.URL == "" {
		return nil, fmt.Errorf("thing configuration supplies neither a document nor a url")
	}

	client := &http.Client{Timeout: DefaultDocumentFetchTimeout}

	resp, err := client.Get(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch thing description '%s': %w", cfg.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to fetch thing description '%s': status %d", cfg.URL, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read thing description '%s': %w", cfg.URL, err)
	}

	return td.Parse(data, cfg.URL)
}

func buildTransport(cfg config.ThingConfig, l logwrap.Logger) (transport.Client, func(), error) {
	noShutdown := func() {}

	if cfg.Transport == nil {
		return transport.NewHTTP(nil), noShutdown, nil
	}

	switch tCfg := cfg.Transport.Config.(type) {
	case *config.HTTPTransportConfig:
		t := transport.NewHTTP(&http.Client{Timeout: timeoutOrDefault(tCfg.TimeoutMs)})
		return t, noShutdown, nil

	case *config.NativeTransportConfig:
		dialer := &websocket.Dialer{
			HandshakeTimeout: time.Duration(tCfg.HandshakeTimeoutMs) * time.Millisecond,
		}

		t := transport.NewNative(
			transport.NewHTTP(&http.Client{Timeout: timeoutOrDefault(tCfg.TimeoutMs)}),
			dialer,
		)
		return t, noShutdown, nil

	case *config.MQTTTransportConfig:
		return startMQTTTransport(*tCfg, l)

	default:
		return nil, nil, fmt.Errorf("unknown transport configuration type: %s", cfg.Transport.Type)
	}
}

func timeoutOrDefault(ms int) time.Duration {
	if ms <= 0 {
		return transport.DefaultRequestTimeout
	}

	return time.Duration(ms) * time.Millisecond
}

func startMQTTTransport(cfg config.MQTTTransportConfig, l logwrap.Logger) (transport.Client, func(), error) {
	clientId, err := randomClientID()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate random client id: %w", err)
	}

	l.LogInfo(context.Background(), "Constructing new MQTT client.", logwrap.Datum("clientId", clientId), logwrap.Datum("server", cfg.Server))

	clientOptions := pahomqtt.NewClientOptions()
	clientOptions.ClientID = clientId

	if url, err := url2.Parse(cfg.Server); err != nil {
		return nil, nil, fmt.Errorf("failed to parse MQTT server URL: %w", err)
	} else {
		clientOptions.Servers = []*url2.URL{url}
	}

	if cfg.Credentials != nil {
		clientOptions.SetUsername(cfg.Credentials.Username)
		clientOptions.SetPassword(cfg.Credentials.Password)
	}

	if cfg.TLS != nil {
		tlsConfig, err := buildMQTTTLSConfig(*cfg.TLS, l)
		if err != nil {
			return nil, nil, err
		}

		clientOptions.SetTLSConfig(tlsConfig)
	}

	clientOptions.OnConnect = func(client pahomqtt.Client) {
		l.LogInfo(context.Background(), "MQTT client connected.", logwrap.Datum("clientId", clientId), logwrap.Datum("server", cfg.Server))
	}

	clientOptions.SetConnectionLostHandler(func(client pahomqtt.Client, err error) {
		l.LogWarn(context.Background(), "MQTT client disconnected.", logwrap.Datum("clientId", clientId), logwrap.Datum("server", cfg.Server), logwrap.Err(err))
	})

	client := pahomqtt.NewClient(clientOptions)

	go func() {
		ctx := context.Background()

		retry := time.NewTicker(1 * time.Second)
		defer retry.Stop()

		for range retry.C {
			if token := client.Connect(); token.Wait() && token.Error() != nil {
				l.LogError(ctx, "Failed initial connection to MQTT server.", logwrap.Datum("clientId", clientId), logwrap.Datum("server", cfg.Server), logwrap.Err(token.Error()))
			} else {
				l.LogInfo(ctx, "Initial MQTT connection call completed.", logwrap.Datum("clientId", clientId), logwrap.Datum("server", cfg.Server))
				return
			}
		}
	}()

	t := transport.NewMQTT(client, cfg.QOS, cfg.Retained)
	if cfg.ReadTimeoutMs > 0 {
		t.WithReadTimeout(time.Duration(cfg.ReadTimeoutMs) * time.Millisecond)
	}

	return t, func() {
		client.Disconnect(1500)
	}, nil
}

func randomClientID() (string, error) {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func buildMQTTTLSConfig(cfg config.MQTTTLS, l logwrap.Logger) (*tls.Config, error) {
	tlsConfig := &tls.Config{InsecureSkipVerify: cfg.SkipCertificateVerification}

	if cfg.SkipCertificateVerification {
		l.LogWarn(context.Background(), "Set to ignore remote TLS certificate, this is considered insecure.")
	}

	if len(cfg.Cert) > 0 {
		cert, err := tls.LoadX509KeyPair(cfg.Cert, cfg.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS certificate/key for mqtt: %w", err)
		}

		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	var certPool *x509.CertPool
	var err error

	if cfg.IgnoreSystemRootCertificates {
		l.LogInfo(context.Background(), "Configured to ignore system root certificates, ensure you are providing your own.")
		certPool = x509.NewCertPool()
	} else {
		certPool, err = x509.SystemCertPool()
		if err != nil {
			// This call fails on Windows with an error, but is not typed appropriately so it's impossible to switch, as
			// such we continue on with an empty certificate pool.

			if runtime.GOOS == "windows" {
				l.LogWarn(context.Background(), "Failed to load system certificate pool for root CAs, this is expected on Windows (see Go Issues 16736 and 18609), you must provide the CA root certificate for your servers trust chain.", logwrap.Err(err))
				certPool = x509.NewCertPool()
			} else {
				return nil, fmt.Errorf("failed to load system certiticate pool: %w", err)
			}
		}
	}

	if len(cfg.CACert) > 0 {
		caCerts, err := os.ReadFile(filepath.Clean(cfg.CACert))
		if err != nil {
			return nil, fmt.Errorf("failed to load CA TLS certificates for mqtt: %w", err)
		}

		certPool.AppendCertsFromPEM(caCerts)
	}

	tlsConfig.RootCAs = certPool

	return tlsConfig, nil
}
