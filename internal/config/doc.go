// Package config loads the parking-sync configuration.
//
// Values come from three layers, lowest priority first: built-in defaults,
// a YAML file (with ${VAR} expansion), and PARKING_* environment variables.
package config
