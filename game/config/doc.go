// Package config provides Viper-based configuration loading for the
// multiplayer server.
//
// Values are resolved in increasing order of precedence:
//   - Built-in defaults
//   - An optional YAML file (--config)
//   - Environment variables prefixed with MULTIPLAYER_, with dots in the key
//     replaced by underscores (MULTIPLAYER_ROOMS_MAX_OCCUPANTS=4)
//   - Command-line flags, applied by the caller after Load
//
// PORT, NGROK_ENABLED, NGROK_AUTHTOKEN and NGROK_DOMAIN are honoured
// without the prefix.
//
// Example file:
//
//	server:
//	  port: 3000
//	  static_dir: public
//	rooms:
//	  max_occupants: 10
//	  empty_policy: retain   # or delete
//	  rejoin_policy: leave   # or reject
//	  empty_room_ttl: 30m
//	logging:
//	  level: debug
//	  format: json
package config
