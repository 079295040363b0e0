// Package ratelimiter implements token bucket rate limiting with pluggable
// storage. The memory store suits single-instance deployments; the Redis
// store keeps limits consistent across replicas.
package ratelimiter
