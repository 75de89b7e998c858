// Package config provides the service configuration and its loading.
//
// Configuration is assembled in layers, each overriding the previous one:
//
//  1. DefaultConfig
//  2. an optional YAML file, with ${VAR} and ${VAR:-default} substitution
//  3. an optional .env file, loaded into the process environment
//  4. the process environment (PORT, ALLOWED_ORIGINS, ...)
//
// Load the configuration and validate it:
//
//	cfg, err := config.Load(config.Sources{File: "usergw.yaml", EnvFile: ".env"})
//	if err != nil {
//	    return err
//	}
//
// Environment variables are matched by the env struct tags of Config.
// Only variables that are set override earlier layers.
package config
