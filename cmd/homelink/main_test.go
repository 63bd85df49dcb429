package main

import (
	"context"
	"testing"
	"time"
)

// TestRun_InvalidConfig verifies run fails with an invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("HOMELINK_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestGetConfigPath verifies config path resolution order.
func TestGetConfigPath(t *testing.T) {
	t.Setenv("HOMELINK_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %v, want default %v", got, defaultConfigPath)
	}

	t.Setenv("HOMELINK_CONFIG", "/etc/homelink/config.yaml")
	if got := getConfigPath(); got != "/etc/homelink/config.yaml" {
		t.Errorf("getConfigPath() = %v, want env override", got)
	}
}
