package database

import (
	"context"
	"fmt"
)

// CreateSchema creates the portal tables and indexes if they do not exist
func (db *DB) CreateSchema(ctx context.Context) error {
	db.logger.Info("Creating database schema...")

	for _, stmt := range SchemaStatements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}

	db.logger.Info("Database schema created successfully")
	return nil
}

// SchemaStatements returns the DDL in dependency order
func SchemaStatements() []string {
	return []string{
		createUsersTable,
		createRequestsTable,
		createReportsTable,
		createRequestHistoryTable,
		createRevokedTokensTable,
		createIndexes,
	}
}

const (
	createUsersTable = `
		CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			username VARCHAR(150) UNIQUE NOT NULL,
			full_name VARCHAR(200) NOT NULL,
			role VARCHAR(20) NOT NULL CHECK (role IN ('doctor', 'lab_technician', 'admin')),
			pin_code VARCHAR(100) NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT true,
			reading_centre_code VARCHAR(20) NOT NULL DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);`

	createRequestsTable = `
		CREATE TABLE IF NOT EXISTS requests (
			id UUID PRIMARY KEY,
			doctor_id UUID NOT NULL REFERENCES users(id),
			centre_name VARCHAR(100) NOT NULL,
			patient_id VARCHAR(50) NOT NULL,
			eye VARCHAR(2) NOT NULL CHECK (eye IN ('OD', 'OS', 'OU', 'NA')),
			sample VARCHAR(100) NOT NULL,
			duration VARCHAR(20) NOT NULL,
			on_meds BOOLEAN NOT NULL DEFAULT false,
			meds VARCHAR(500) NOT NULL DEFAULT '',
			impression VARCHAR(20) NOT NULL,
			stain VARCHAR(100) NOT NULL DEFAULT '',
			image_key VARCHAR(300) NOT NULL DEFAULT '',
			status VARCHAR(10) NOT NULL DEFAULT 'Pending' CHECK (status IN ('Pending', 'Completed')),
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);`

	// request_id is UNIQUE: a request never carries a second report
	createReportsTable = `
		CREATE TABLE IF NOT EXISTS reports (
			id UUID PRIMARY KEY,
			request_id UUID UNIQUE NOT NULL REFERENCES requests(id),
			rc_code VARCHAR(20) NOT NULL,
			lab_id VARCHAR(50) NOT NULL,
			quality VARCHAR(10) NOT NULL DEFAULT '',
			sample_suitability BOOLEAN NOT NULL DEFAULT true,
			suitability_reason TEXT NOT NULL DEFAULT '',
			report_text TEXT NOT NULL,
			comments TEXT NOT NULL DEFAULT '',
			auth_by VARCHAR(200) NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);`

	createRequestHistoryTable = `
		CREATE TABLE IF NOT EXISTS request_history (
			id UUID PRIMARY KEY,
			request_id UUID NOT NULL REFERENCES requests(id),
			user_id UUID REFERENCES users(id),
			action VARCHAR(50) NOT NULL,
			note TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);`

	createRevokedTokensTable = `
		CREATE TABLE IF NOT EXISTS revoked_tokens (
			jti UUID PRIMARY KEY,
			expires_at TIMESTAMP WITH TIME ZONE NOT NULL
		);`

	createIndexes = `
		CREATE INDEX IF NOT EXISTS idx_requests_doctor_created ON requests(doctor_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_requests_status_created ON requests(status, created_at);
		CREATE INDEX IF NOT EXISTS idx_requests_patient_id ON requests(patient_id);
		CREATE INDEX IF NOT EXISTS idx_request_history_request_created ON request_history(request_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_revoked_tokens_expires ON revoked_tokens(expires_at);
		CREATE INDEX IF NOT EXISTS idx_users_active_name ON users(is_active, full_name);`
)
