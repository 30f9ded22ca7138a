package test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gruntwork-io/terratest/modules/terraform"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver
)

func TestTerraformDatabaseInfrastructure(t *testing.T) {
	// Skip this test unless explicitly enabled with TERRATEST_ENABLED=1
	if os.Getenv("TERRATEST_ENABLED") != "1" {
		t.Skip("Skipping infrastructure tests. Set TERRATEST_ENABLED=1 to run")
	}

	doToken := os.Getenv("DO_TOKEN")
	if doToken == "" {
		t.Fatal("DO_TOKEN environment variable must be set")
	}

	terraformDir := filepath.Join("..")

	terraformOptions := terraform.WithDefaultRetryableErrors(t, &terraform.Options{
		TerraformDir: terraformDir,
		Vars: map[string]interface{}{
			"do_token":      doToken,
			"cluster_name":  "grimoire-db-test",
			"database_name": "grimoire_test",
			"node_size":     "db-s-1vcpu-1gb", // Smallest size for testing
			"node_count":    1,
		},
	})

	defer terraform.Destroy(t, terraformOptions)

	terraform.InitAndApply(t, terraformOptions)

	dbHost := terraform.Output(t, terraformOptions, "database_host")
	if dbHost == "" {
		t.Fatal("Expected database_host output to be set")
	}

	dbPort := terraform.Output(t, terraformOptions, "database_port")
	if dbPort == "" {
		t.Fatal("Expected database_port output to be set")
	}

	dbName := terraform.Output(t, terraformOptions, "database_name")
	if dbName == "" {
		t.Fatal("Expected database_name output to be set")
	}

	connectionString := terraform.OutputRequired(t, terraformOptions, "connection_string")
	if len(connectionString) < 20 {
		t.Fatalf("Connection string appears invalid: %s", connectionString)
	}

	t.Log("Attempting to connect to database using connection string")
	db, err := sql.Open("pgx", connectionString)
	if err != nil {
		t.Fatalf("Failed to open database connection: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: failed to close database connection: %v", err)
		}
	}()

	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("Failed to ping database: %v", err)
	}

	var version string
	if err := db.QueryRowContext(ctx, "SELECT version()").Scan(&version); err != nil {
		t.Fatalf("Failed to execute query: %v", err)
	}
	t.Logf("Database version: %s", version)
}
