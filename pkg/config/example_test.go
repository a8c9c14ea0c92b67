package config_test

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/ajitpratap0/gluejdbc/pkg/config"
)

// ExampleDefault demonstrates the defaults every command starts from.
func ExampleDefault() {
	cfg := config.Default()

	fmt.Printf("Batch Size: %d\n", cfg.Performance.BatchSize)
	fmt.Printf("Sample Size: %d\n", cfg.Performance.SampleSize)
	fmt.Printf("Connection Timeout: %s\n", cfg.Timeouts.Connection)
	fmt.Printf("Throttle Retries: %d\n", cfg.Reliability.ThrottleRetries)

	// Output:
	// Batch Size: 10000
	// Sample Size: 10
	// Connection Timeout: 10s
	// Throttle Retries: 0
}

// ExampleConfig_Validate shows how to validate a configuration
// before using it.
func ExampleConfig_Validate() {
	cfg := config.Default()
	cfg.Performance.BatchSize = 50000
	cfg.Timeouts.Query = 2 * time.Minute

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	cfg.Performance.BatchSize = 0
	fmt.Println(cfg.Validate())

	// Output:
	// config: performance.batch_size must be positive
}

// ExampleLoad demonstrates loading configuration from a YAML file
// with environment variable substitution.
func ExampleLoad() {
	dir, err := os.MkdirTemp("", "gluejdbc-config")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "gluejdbc.yaml")
	yaml := "catalog:\n  region: ${EXAMPLE_GLUE_REGION}\nperformance:\n  batch_size: 500\n"
	if err := os.WriteFile(path, []byte(yaml), 0600); err != nil {
		log.Fatal(err)
	}

	os.Setenv("EXAMPLE_GLUE_REGION", "eu-west-1")
	defer os.Unsetenv("EXAMPLE_GLUE_REGION")

	cfg := config.Default()
	if err := config.Load(path, cfg); err != nil {
		log.Fatal(err)
	}

	fmt.Println(cfg.Catalog.Region)
	fmt.Println(cfg.Performance.BatchSize)
	fmt.Println(cfg.Performance.SampleSize)

	// Output:
	// eu-west-1
	// 500
	// 10
}
