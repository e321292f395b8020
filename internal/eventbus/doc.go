// Package eventbus is an in-process, non-blocking fan-out bus. The cron
// service publishes run lifecycle events on it and the daemon's default
// runtime uses it for system events and heartbeat wakes.
package eventbus
