// Package config handles configuration loading for calgate.
//
// Configuration is loaded from YAML files with environment variable
// expansion (${VAR_NAME} syntax) and Go duration parsing for timing
// fields. Load() validates required fields and applies defaults for
// optional ones.
//
// Example configuration:
//
//	telegram:
//	  token: "${CALGATE_BOT_TOKEN}"
//	  poll_timeout: "30s"
//
//	database:
//	  path: "/var/lib/calgate/credentials.db"
//
//	google:
//	  client_secret_file: "/etc/calgate/client_secret.json"
//	  redirect_url: "https://bot.example.com:8480/oauth2callback"
//
//	callback:
//	  listen_addr: ":8480"
//
//	engine:
//	  workers: 4
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
