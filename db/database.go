package db

import (
	"database/sql"
	"fmt"
	"log"

	"X402FM/config"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

var DB *sql.DB

// ConnectDB establishes a connection to the database.
func ConnectDB(cfg *config.Config) error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	var err error
	DB, err = sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	if err = DB.Ping(); err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Successfully connected to the database.")
	return nil
}

// InitDB initializes the database schema, creating tables if they don't exist.
func InitDB() error {
	if err := createTracksTable(); err != nil {
		return err
	}
	if err := createStreamSessionsTable(); err != nil {
		return err
	}
	if err := createPaymentRecordsTable(); err != nil {
		return err
	}

	log.Println("Database initialization completed.")
	return nil
}

func createTracksTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS tracks (
		id CHAR(36) PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		artist VARCHAR(255),
		description TEXT,
		audio_path VARCHAR(767) NOT NULL,
		cover_path VARCHAR(767),
		price DECIMAL(10,2) NOT NULL,
		artist_wallet VARCHAR(64),
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create tracks table: %w", err)
	}
	log.Println("Tracks table initialized successfully (or already exists).")
	return nil
}

func createStreamSessionsTable() error {
	// stream_sessions 只插入不更新，过期通过 expires_at 计算
	query := `
	CREATE TABLE IF NOT EXISTS stream_sessions (
		stream_id CHAR(36) PRIMARY KEY,
		track_id CHAR(36) NOT NULL,
		payer_wallet VARCHAR(64),
		access_token VARCHAR(128) NOT NULL,
		created_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP NOT NULL,
		CONSTRAINT uq_access_token UNIQUE (access_token),
		CONSTRAINT fk_session_track FOREIGN KEY (track_id) REFERENCES tracks(id)
	);
	`
	if _, err := DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create stream_sessions table: %w", err)
	}
	log.Println("Stream sessions table initialized successfully (or already exists).")
	return nil
}

func createPaymentRecordsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS payment_records (
		id INT AUTO_INCREMENT PRIMARY KEY,
		track_id CHAR(36) NOT NULL,
		stream_id CHAR(36) NOT NULL,
		amount DECIMAL(10,2) NOT NULL,
		tx_hash VARCHAR(128),
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create payment_records table: %w", err)
	}
	log.Println("Payment records table initialized successfully (or already exists).")
	return nil
}
