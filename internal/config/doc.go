// Package config loads and watches the broker's YAML configuration. A
// missing config file is not an error; the defaults describe a working
// localhost setup, and deployments override only what differs.
package config
