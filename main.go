package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	lw "github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/logwrap/impl/golog"
	"github.com/shimmeringbee/wotbind/binder"
	"github.com/shimmeringbee/wotbind/metric"
	"github.com/shimmeringbee/wotbind/state"
)

func main() {
	ctx := context.Background()
	l := lw.New(golog.Wrap(log.New(os.Stderr, "", log.LstdFlags)))

	l.LogInfo(ctx, "Shimmering Bee: WoT Bind - Copyright 2019-2020 Shimmering Bee Contributors - Starting...")

	directories := enumerateDirectories(ctx, l)

	l.LogInfo(ctx, "Directory enumeration complete.", lw.Datum("directories", directories))

	l, err := configureLogging(filepath.Join(directories.Config, "logging"), directories.Log, l)
	if err != nil {
		l.LogFatal(ctx, "Failed to configure logging.", lw.Err(err))
	}

	thingCfgs, err := loadThingConfigurations(filepath.Join(directories.Config, "things"))
	if err != nil {
		l.LogFatal(ctx, "Failed to load thing configurations.", lw.Err(err))
	}

	bindingCfgs, err := loadBindingConfigurations(filepath.Join(directories.Config, "bindings"))
	if err != nil {
		l.LogFatal(ctx, "Failed to load binding configurations.", lw.Err(err))
	}

	interfaceCfgs, err := loadInterfaceConfigurations(filepath.Join(directories.Config, "interfaces"))
	if err != nil {
		l.LogFatal(ctx, "Failed to load interface configurations.", lw.Err(err))
	}

	bus := state.NewEventBus()
	mux := state.NewThingMux()
	operations := metric.NewOperations(nil)

	l.LogInfo(ctx, "Starting things.", lw.Datum("configCount", len(thingCfgs)))
	startedThings, err := startThings(thingCfgs, mux, bus, operations, l)
	if err != nil {
		l.LogFatal(ctx, "Failed to start things.", lw.Err(err))
	}

	l.LogInfo(ctx, "Initialising bindings.", lw.Datum("configCount", len(bindingCfgs)))
	b := binder.NewBinder(mux, bus, l)

	shutdownBindings, err := initialiseBindings(l, directories.Data, b, bindingCfgs)
	if err != nil {
		l.LogFatal(ctx, "Failed to initialise bindings.", lw.Err(err))
	}

	l.LogInfo(ctx, "Starting interfaces.")
	startedInterfaces, err := startInterfaces(interfaceCfgs, mux, b, bus, l)
	if err != nil {
		l.LogFatal(ctx, "Failed to start interfaces.", lw.Err(err))
	}

	l.LogInfo(ctx, "WoT Bind ready.")

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	s := <-signalCh
	l.LogInfo(ctx, "Signal received, shutting down.", lw.Datum("signal", s.String()))

	for _, intf := range startedInterfaces {
		l.LogInfo(ctx, "Shutting down interface.", lw.Datum("interface", intf.Name))

		if err := intf.Shutdown(); err != nil {
			l.LogError(ctx, "Failed to shutdown interface.", lw.Err(err), lw.Datum("interface", intf.Name))
		}
	}

	l.LogInfo(ctx, "Shutting down bindings.")
	shutdownBindings()
	b.UnbindAll()

	for _, t := range startedThings {
		l.LogInfo(ctx, "Shutting down thing.", lw.Datum("thing", t.Name))
		t.Shutdown()
	}

	l.LogInfo(ctx, "Shut down complete.")
}
