// Package mqtt provides the MQTT transport layer for Mycelia Core.
//
// Devices publish telemetry, status, and command acknowledgments on topics
// of the form:
//
//	farm/{farmID}/room/{roomID}/device/{deviceID}/{kind}
//
// and the core publishes outbound commands on:
//
//	farm/{farmID}/room/{roomID}/device/{deviceID}/command
//
// The package exposes a Transport capability interface with two
// implementations selected once at startup:
//
//   - Client: real broker connection via eclipse/paho.mqtt.golang, with
//     automatic reconnection, subscription restoration, and a Last Will
//     announcing unexpected core shutdown.
//   - Simulator: in-process loopback used in development mode and tests.
//     Published messages are delivered synchronously to matching local
//     subscribers; no broker required.
//
// Handlers registered via Subscribe are invoked on transport goroutines and
// must not block; the ingest package provides the bounded queue that
// decouples them from business logic.
package mqtt
