// Package config handles loading and validating beadle service configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Loading a .env file and overriding with BEADLE_* environment variables
//   - Validation of required fields and secret lengths
//   - Default value handling, including the standard bell schedule
//
// Security Considerations:
//   - Session keys and the ticket secret should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.School.Name)
package config
