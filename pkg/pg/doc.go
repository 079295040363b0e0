// Package pg provides PostgreSQL connection management on top of pgxpool:
// connect with retry, goose schema migrations, health checks, and error
// predicates for consistent store-boundary error handling.
package pg
