// Package config loads typed configuration structs from environment variables
// using caarlos0/env struct tags, with an optional .env file picked up once at
// startup via godotenv. Each config type is parsed exactly once per process
// and cached, so components can call Load for their own config independently
// without re-reading the environment.
package config
