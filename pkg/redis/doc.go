// Package redis provides Redis connection management with retry and a
// healthcheck closure for readiness probes.
package redis
