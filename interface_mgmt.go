package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	gorillamux "github.com/gorilla/mux"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/logwrap/impl/nest"
	"github.com/shimmeringbee/wotbind/binder"
	"github.com/shimmeringbee/wotbind/config"
	"github.com/shimmeringbee/wotbind/interface/http/auth"
	"github.com/shimmeringbee/wotbind/interface/http/auth/external"
	"github.com/shimmeringbee/wotbind/interface/http/auth/jwt"
	"github.com/shimmeringbee/wotbind/interface/http/auth/null"
	"github.com/shimmeringbee/wotbind/interface/http/pprof"
	v1 "github.com/shimmeringbee/wotbind/interface/http/v1"
	"github.com/shimmeringbee/wotbind/metric"
	"github.com/shimmeringbee/wotbind/state"
)

type StartedInterface struct {
	Name     string
	Shutdown func() error
}

func loadInterfaceConfigurations(dir string) ([]config.InterfaceConfig, error) {
	if err := os.MkdirAll(dir, DefaultDirectoryPermissions); err != nil {
		return nil, fmt.Errorf("failed to ensure interface configuration directory exists: %w", err)
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory listing for interface configurations: %w", err)
	}

	var retCfgs []config.InterfaceConfig

	for _, file := range files {
		if !strings.HasSuffix(file.Name(), ".json") {
			continue
		}

		fullPath := filepath.Join(dir, file.Name())
		data, err := os.ReadFile(fullPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read interface configuration file '%s': %w", fullPath, err)
		}

		cfg := config.InterfaceConfig{
			Name: strings.TrimSuffix(file.Name(), filepath.Ext(file.Name())),
		}

		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse interface configuration file '%s': %w", fullPath, err)
		}

		retCfgs = append(retCfgs, cfg)
	}

	return retCfgs, nil
}

func startInterfaces(cfgs []config.InterfaceConfig, things state.ThingMapper, b *binder.Binder, bus state.EventSubscriber, l logwrap.Logger) ([]StartedInterface, error) {
	var retIfs []StartedInterface

	for _, cfg := range cfgs {
		if shutdown, err := startInterface(cfg, things, b, bus, l); err != nil {
			return retIfs, fmt.Errorf("failed to start interface '%s': %w", cfg.Name, err)
		} else {
			retIfs = append(retIfs, StartedInterface{
				Name:     cfg.Name,
				Shutdown: shutdown,
			})
		}
	}

	return retIfs, nil
}

func startInterface(cfg config.InterfaceConfig, things state.ThingMapper, b *binder.Binder, bus state.EventSubscriber, l logwrap.Logger) (func() error, error) {
	wl := logwrap.New(nest.Wrap(l))
	wl.AddOptionsToLogger(logwrap.Datum("interface", cfg.Name))

	switch ifCfg := cfg.Config.(type) {
	case *config.HTTPInterfaceConfig:
		wl.AddOptionsToLogger(logwrap.Source("http"))
		return startHTTPInterface(*ifCfg, things, b, bus, wl)
	default:
		return nil, fmt.Errorf("unknown interface type loaded: %s", cfg.Type)
	}
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}

	return false
}

func startHTTPInterface(cfg config.HTTPInterfaceConfig, things state.ThingMapper, b *binder.Binder, bus state.EventSubscriber, l logwrap.Logger) (func() error, error) {
	ap, err := constructAuthenticationProvider(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to construct authentication provider: %w", err)
	}

	r := gorillamux.NewRouter()

	if containsString(cfg.EnabledAPIs, "v1") {
		l.LogInfo(context.Background(), "Mounting v1 API endpoint on /api/v1.")

		v1Router := v1.ConstructRouter(things, b, l, ap, bus)
		// Use http.StripPrefix to obscure the real path from the v1 api code, though this will cause issues if we
		// ever issue redirects from the API.
		r.PathPrefix("/api/v1").Handler(http.StripPrefix("/api/v1", v1Router))
	}

	if containsString(cfg.EnabledAPIs, "metrics") {
		l.LogInfo(context.Background(), "Mounting metrics endpoint on /metrics.")
		r.Path("/metrics").Handler(ap.AuthenticationMiddleware(metric.Handler()))
	}

	if containsString(cfg.EnabledAPIs, "pprof") {
		l.LogInfo(context.Background(), "Mounting pprof endpoint on /pprof.")
		r.PathPrefix("/pprof").Handler(http.StripPrefix("/pprof", pprof.ConstructRouter(ap)))
	}

	bindAddress := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: bindAddress, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.LogError(context.Background(), "Failed to start http server.", logwrap.Err(err))
		}
	}()

	return func() error {
		return srv.Shutdown(context.Background())
	}, nil
}

const DefaultJWTTTL = 60 * time.Minute

func constructAuthenticationProvider(cfg *config.AuthConfig) (auth.AuthenticationProvider, error) {
	if cfg == nil || cfg.Type == "" || cfg.Type == "null" {
		return null.Authenticator{}, nil
	}

	switch cfg.Type {
	case "external":
		header := cfg.UserHeader
		if header == "" {
			header = external.HttpUserHeader
		}

		return external.Authenticator{UserHeader: header}, nil

	case "jwt":
		key, err := loadECPrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load jwt private key: %w", err)
		}

		ttl := DefaultJWTTTL
		if cfg.TTLMinutes > 0 {
			ttl = time.Duration(cfg.TTLMinutes) * time.Minute
		}

		keyIdentifier := cfg.KeyIdentifier
		if keyIdentifier == "" {
			keyIdentifier = "primary"
		}

		return jwt.Authenticator{
			SystemIdentifier: cfg.SystemIdentifier,
			TTL:              ttl,
			KeyIdentifier:    keyIdentifier,
			PrivateKey:       key,
		}, nil

	default:
		return nil, fmt.Errorf("unknown authentication type: %s", cfg.Type)
	}
}

func loadECPrivateKey(file string) (*ecdsa.PrivateKey, error) {
	if file == "" {
		return nil, fmt.Errorf("jwt authentication requires a private key file")
	}

	data, err := os.ReadFile(filepath.Clean(file))
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no pem block found in '%s'", file)
	}

	return x509.ParseECPrivateKey(block.Bytes)
}
