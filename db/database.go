package db

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/jamesdoliver/featune-sub001/config"

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
	if err := createUsersTable(); err != nil {
		return err
	}
	if err := createTracksTable(); err != nil {
		return err
	}
	if err := createOrdersTable(); err != nil {
		return err
	}
	if err := createOrderLineItemsTable(); err != nil {
		return err
	}
	if err := createPayoutsTable(); err != nil {
		return err
	}

	log.Println("Database initialization completed.")
	return nil
}

func createUsersTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		username VARCHAR(100) NOT NULL UNIQUE,
		email VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		role VARCHAR(16) NOT NULL DEFAULT 'buyer',
		revenue_split DECIMAL(5,4) NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	);
	`
	if _, err := DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}
	return nil
}

func createTracksTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS tracks (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		creator_id BIGINT NOT NULL,
		title VARCHAR(255) NOT NULL,
		genre VARCHAR(100),
		license_mode VARCHAR(16) NOT NULL DEFAULT 'unlimited',
		license_limit INT NOT NULL DEFAULT 0,
		licenses_sold INT NOT NULL DEFAULT 0,
		price_non_exclusive BIGINT NULL,
		price_exclusive BIGINT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'pending',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		CONSTRAINT fk_creator_tracks FOREIGN KEY (creator_id) REFERENCES users(id)
	);
	`
	if _, err := DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create tracks table: %w", err)
	}
	return nil
}

func createOrdersTable() error {
	// The unique constraint on external_payment_ref is the idempotency
	// anchor: a redelivered confirmation can never create a second order.
	query := `
	CREATE TABLE IF NOT EXISTS orders (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		buyer_id BIGINT NOT NULL,
		subtotal BIGINT NOT NULL,
		discount_percent INT NOT NULL DEFAULT 0,
		discount_amount BIGINT NOT NULL DEFAULT 0,
		total BIGINT NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'pending',
		external_payment_ref VARCHAR(191) NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		CONSTRAINT uq_orders_payment_ref UNIQUE (external_payment_ref),
		CONSTRAINT fk_buyer_orders FOREIGN KEY (buyer_id) REFERENCES users(id)
	);
	`
	if _, err := DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create orders table: %w", err)
	}
	return nil
}

func createOrderLineItemsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS order_line_items (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		order_id BIGINT NOT NULL,
		track_id BIGINT NOT NULL,
		creator_id BIGINT NOT NULL,
		license_type VARCHAR(16) NOT NULL,
		price_at_purchase BIGINT NOT NULL,
		creator_earnings BIGINT NOT NULL,
		license_document_ref VARCHAR(512) NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT fk_order_line_items FOREIGN KEY (order_id) REFERENCES orders(id),
		INDEX idx_line_items_creator (creator_id)
	);
	`
	if _, err := DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create order_line_items table: %w", err)
	}
	return nil
}

func createPayoutsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS payouts (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		creator_id BIGINT NOT NULL,
		amount BIGINT NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'pending',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		paid_at TIMESTAMP NULL,
		CONSTRAINT fk_creator_payouts FOREIGN KEY (creator_id) REFERENCES users(id),
		INDEX idx_payouts_creator (creator_id)
	);
	`
	if _, err := DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create payouts table: %w", err)
	}
	return nil
}
