// Package device manages the device inventory and liveness state.
//
// Devices are sensors and actuators installed in growing rooms. The core
// tracks two mutable facts about each one: its online/offline status and
// the timestamp of its last message. Everything else (name, type,
// placement) is provisioned by the management backend and treated as
// read-only here.
//
// The Registry provides a cached, thread-safe view over the Repository
// so hot paths (telemetry ingestion, command dispatch) avoid a database
// round trip per message.
package device
