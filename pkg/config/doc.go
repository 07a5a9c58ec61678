/*
Package config loads the process configuration for burrow.

The file is YAML and every key is optional. Unknown keys are rejected so a
typo does not silently fall back to a default.

	data_dir: /var/lib/burrow      # bbolt database and backups
	listen: 127.0.0.1:8470         # API, health and metrics
	api_token: ""                  # bearer token for /api/v1, 16+ chars
	log:
	  level: info                  # debug, info, warn, error
	  json: false
	gate:                          # outbound appliance calls
	  burst: 20
	  window: 1s
	  timeout: 10s
	  retries: 2
	  retry_delay: 1s
	client:
	  ca_file: ""                  # extra CA bundle for appliance TLS
	  insecure_skip_verify: false
	health:
	  enabled: true
	  interval: 5m
	  timeout: 10s
	  retries: 2
	dns:                           # dnsLookup against appliance port 53
	  enabled: true
	  port: 53
	  network: udp                 # udp or tcp

Runtime settings (auto-sync, cache TTL, prefer-latest, sync interval) are not
part of this file. They are stored in the database and edited through the
saveSettings operation or `burrow settings set`.
*/
package config
