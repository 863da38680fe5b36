package main

import (
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mcdev12/momento/go/internal/room/gateway"
	"github.com/mcdev12/momento/go/internal/room/registry"
)

func gatewayConfig(config *Config) gateway.Config {
	gwConfig := gateway.DefaultConfig()
	gwConfig.DefaultExpiryMinutes = config.Rooms.DefaultExpiryMinutes
	gwConfig.ConnectionConfig.DestroyEmptyRooms = config.Rooms.DestroyEmpty
	gwConfig.ConnectionConfig.PingInterval = config.WebSocket.PingInterval
	gwConfig.ConnectionConfig.ReadTimeout = config.WebSocket.ReadTimeout

	if config.NATS.URL != "" {
		gwConfig.EnableRelay = true
		gwConfig.RelayConfig.URL = config.NATS.URL
		gwConfig.RelayConfig.SubjectPrefix = config.NATS.SubjectPrefix
	}
	return gwConfig
}

func setupGateway(config *Config, store registry.Store, reg prometheus.Registerer) (*gateway.Service, error) {
	metrics := gateway.NewPrometheusMetrics(reg)
	return gateway.NewService(gatewayConfig(config), store, clockwork.NewRealClock(), metrics)
}
