package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	monitoreo "github.com/marcelofrutosn/sistema-de-monitoreo"
)

// Runs the service on SQLite and prints every pushed sample to stdout.
func main() {
	cfg, err := monitoreo.LoadConfig("../../config.example.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg.Store.Driver = monitoreo.DriverSQLite

	rt, err := monitoreo.NewRuntime(cfg)
	if err != nil {
		log.Fatalf("build runtime: %v", err)
	}

	conn, samples, closeFn := monitoreo.NewChannelSubscriber(16)
	defer closeFn()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		for s := range samples {
			log.Printf("sample #%d at %s: voltaje=%v corriente=%v temperatura=%v",
				s.ID, s.Timestamp.Format("15:04:05"), deref(s.Voltage), deref(s.Current), deref(s.Temperature))
		}
	}()

	if _, err := rt.Subscribe(conn); err != nil {
		log.Fatalf("subscribe: %v", err)
	}

	if err := rt.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("runtime exited: %v", err)
	}
}

func deref(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
