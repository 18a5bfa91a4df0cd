// Package config loads, normalizes, and validates zapvoice configuration data.
//
// Settings are layered: repository defaults, then an optional TOML file, then a
// .env file loaded through godotenv, then process environment variables such as
// MIN_SATOSHI_QNT, RELAYS, or QUEUE_CHECK_INTERVAL. Environment values always
// win so container deployments can run without a config file.
//
// Always obtain settings through this package so downstream code receives
// expanded paths, trimmed relay lists, positive intervals, and clear
// validation errors.
package config
