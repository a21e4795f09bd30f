// Command seed creates the gateway schema and loads development fixtures:
// three groups, three users, two model versions, and the permission and
// rate-limit rows that bind them. Safe to run repeatedly.
package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS groups (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS user_groups (
		user_id UUID NOT NULL REFERENCES users(id),
		group_id UUID NOT NULL REFERENCES groups(id),
		PRIMARY KEY (user_id, group_id)
	)`,
	`CREATE TABLE IF NOT EXISTS models (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		description TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS model_versions (
		id UUID PRIMARY KEY,
		model_id UUID NOT NULL REFERENCES models(id),
		version TEXT NOT NULL,
		provider TEXT NOT NULL,
		upstream_model TEXT NOT NULL DEFAULT '',
		internal_endpoint_url TEXT,
		UNIQUE (model_id, version)
	)`,
	`CREATE TABLE IF NOT EXISTS rate_limit_policies (
		id UUID PRIMARY KEY,
		window_seconds INTEGER NOT NULL,
		max_requests INTEGER NOT NULL,
		UNIQUE (window_seconds, max_requests)
	)`,
	`CREATE TABLE IF NOT EXISTS group_model_permissions (
		id UUID PRIMARY KEY,
		group_id UUID NOT NULL REFERENCES groups(id),
		model_version_id UUID NOT NULL REFERENCES model_versions(id),
		allowed BOOLEAN NOT NULL,
		policy_id UUID REFERENCES rate_limit_policies(id),
		UNIQUE (group_id, model_version_id)
	)`,
	`CREATE TABLE IF NOT EXISTS request_logs (
		id BIGSERIAL PRIMARY KEY,
		principal_id UUID,
		model_name TEXT NOT NULL,
		version TEXT NOT NULL,
		outcome TEXT NOT NULL,
		status_code INTEGER NOT NULL,
		latency_ms INTEGER NOT NULL,
		detail TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

func main() {
	_ = godotenv.Load()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			log.Fatalf("failed to create schema: %v", err)
		}
	}

	if err := seed(db); err != nil {
		log.Fatalf("seed failed: %v", err)
	}

	fmt.Println("seed complete")
}

func seed(db *sql.DB) error {
	// Groups
	admins, err := ensureGroup(db, "admins")
	if err != nil {
		return err
	}
	devs, err := ensureGroup(db, "devs")
	if err != nil {
		return err
	}
	systems, err := ensureGroup(db, "systems")
	if err != nil {
		return err
	}

	// Users with development passwords
	admin, err := ensureUser(db, "admin", "admin-password")
	if err != nil {
		return err
	}
	tom, err := ensureUser(db, "tom", "tom-password")
	if err != nil {
		return err
	}
	svc, err := ensureUser(db, "chatbot-service", "service-password")
	if err != nil {
		return err
	}

	memberships := []struct{ userID, groupID string }{
		{admin, admins},
		{tom, devs},
		{svc, systems},
	}
	for _, m := range memberships {
		if _, err := db.Exec(
			`INSERT INTO user_groups (user_id, group_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			m.userID, m.groupID,
		); err != nil {
			return fmt.Errorf("membership: %w", err)
		}
	}

	// Models and versions
	tinyLlama, err := ensureModel(db, "tiny-llama", "Tiny LLaMA model for testing")
	if err != nil {
		return err
	}
	gpt4oMini, err := ensureModel(db, "gpt-4o-mini", "OpenAI GPT-4o-mini")
	if err != nil {
		return err
	}

	tinyV1, err := ensureModelVersion(db, tinyLlama, "v1", "internal",
		"TinyLlama/TinyLlama-1.1B-Chat-v1.0", "http://localhost:8001")
	if err != nil {
		return err
	}
	gptV1, err := ensureModelVersion(db, gpt4oMini, "v1", "openai", "gpt-4o-mini", "")
	if err != nil {
		return err
	}

	// Rate limit policies over a five minute window
	rlHigh, err := ensurePolicy(db, 300, 1000)
	if err != nil {
		return err
	}
	rlMed, err := ensurePolicy(db, 300, 120)
	if err != nil {
		return err
	}
	rlLow, err := ensurePolicy(db, 300, 20)
	if err != nil {
		return err
	}

	perms := []struct {
		groupID, versionID string
		allowed            bool
		policyID           *string
	}{
		{admins, gptV1, true, &rlHigh},
		{admins, tinyV1, true, &rlHigh},
		{devs, gptV1, true, &rlMed},
		{devs, tinyV1, true, &rlMed},
		{systems, tinyV1, true, &rlLow},
		{systems, gptV1, false, nil},
	}
	for _, p := range perms {
		if err := ensurePermission(db, p.groupID, p.versionID, p.allowed, p.policyID); err != nil {
			return err
		}
	}

	return nil
}

func ensureGroup(db *sql.DB, name string) (string, error) {
	var id string
	err := db.QueryRow(`SELECT id FROM groups WHERE name = $1`, name).Scan(&id)
	if err == sql.ErrNoRows {
		id = uuid.NewString()
		_, err = db.Exec(`INSERT INTO groups (id, name) VALUES ($1, $2)`, id, name)
	}
	if err != nil {
		return "", fmt.Errorf("group %q: %w", name, err)
	}
	return id, nil
}

func ensureUser(db *sql.DB, username, password string) (string, error) {
	var id string
	err := db.QueryRow(`SELECT id FROM users WHERE username = $1`, username).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("user %q: %w", username, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("user %q: %w", username, err)
	}

	id = uuid.NewString()
	_, err = db.Exec(
		`INSERT INTO users (id, username, password_hash) VALUES ($1, $2, $3)`,
		id, username, string(hash),
	)
	if err != nil {
		return "", fmt.Errorf("user %q: %w", username, err)
	}
	return id, nil
}

func ensureModel(db *sql.DB, name, description string) (string, error) {
	var id string
	err := db.QueryRow(`SELECT id FROM models WHERE name = $1`, name).Scan(&id)
	if err == sql.ErrNoRows {
		id = uuid.NewString()
		_, err = db.Exec(
			`INSERT INTO models (id, name, description) VALUES ($1, $2, $3)`,
			id, name, description,
		)
	}
	if err != nil {
		return "", fmt.Errorf("model %q: %w", name, err)
	}
	return id, nil
}

func ensureModelVersion(db *sql.DB, modelID, version, provider, upstreamModel, endpoint string) (string, error) {
	var id string
	err := db.QueryRow(
		`SELECT id FROM model_versions WHERE model_id = $1 AND version = $2`,
		modelID, version,
	).Scan(&id)
	if err == sql.ErrNoRows {
		id = uuid.NewString()
		var endpointVal interface{}
		if endpoint != "" {
			endpointVal = endpoint
		}
		_, err = db.Exec(
			`INSERT INTO model_versions (id, model_id, version, provider, upstream_model, internal_endpoint_url)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			id, modelID, version, provider, upstreamModel, endpointVal,
		)
	}
	if err != nil {
		return "", fmt.Errorf("model version %s/%s: %w", modelID, version, err)
	}
	return id, nil
}

func ensurePolicy(db *sql.DB, windowSeconds, maxRequests int) (string, error) {
	var id string
	err := db.QueryRow(
		`SELECT id FROM rate_limit_policies WHERE window_seconds = $1 AND max_requests = $2`,
		windowSeconds, maxRequests,
	).Scan(&id)
	if err == sql.ErrNoRows {
		id = uuid.NewString()
		_, err = db.Exec(
			`INSERT INTO rate_limit_policies (id, window_seconds, max_requests) VALUES ($1, $2, $3)`,
			id, windowSeconds, maxRequests,
		)
	}
	if err != nil {
		return "", fmt.Errorf("policy %d/%d: %w", windowSeconds, maxRequests, err)
	}
	return id, nil
}

func ensurePermission(db *sql.DB, groupID, versionID string, allowed bool, policyID *string) error {
	_, err := db.Exec(
		`INSERT INTO group_model_permissions (id, group_id, model_version_id, allowed, policy_id)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (group_id, model_version_id)
		 DO UPDATE SET allowed = EXCLUDED.allowed, policy_id = EXCLUDED.policy_id`,
		uuid.NewString(), groupID, versionID, allowed, policyID,
	)
	if err != nil {
		return fmt.Errorf("permission %s -> %s: %w", groupID, versionID, err)
	}
	return nil
}
