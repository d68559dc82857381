// Package ingest is the inbound message pipeline.
//
// The router subscribes to the device topic wildcards, parses each
// topic into a typed route, and hands messages to a bounded queue
// drained by a worker pool. Transport callbacks therefore never block
// on database work; when the queue is full, messages are dropped and
// counted rather than backing up into the MQTT client.
package ingest
