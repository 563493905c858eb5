package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func main() {
	_ = godotenv.Load()

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		dsn = "kruasiam:kruasiam@tcp(localhost:3306)/kruasiam?parseTime=true&multiStatements=true&loc=Local"
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Failed to get DB: %v", err)
	}

	sql := `
	CREATE TABLE IF NOT EXISTS orders (
	  id CHAR(36) NOT NULL,
	  display_id VARCHAR(16) NOT NULL,
	  user_id CHAR(36) NULL,
	  customer_email VARCHAR(255) NULL,
	  status VARCHAR(32) NOT NULL,
	  is_closed TINYINT(1) NOT NULL DEFAULT 0,
	  delivery_location_id CHAR(36) NULL,
	  delivery_building VARCHAR(64) NULL,
	  custom_address VARCHAR(512) NULL,
	  subtotal DECIMAL(10,2) NOT NULL,
	  tax DECIMAL(10,2) NOT NULL,
	  delivery_fee DECIMAL(10,2) NOT NULL,
	  total DECIMAL(10,2) NOT NULL,
	  cancel_reason VARCHAR(255) NULL,
	  refund_type VARCHAR(16) NOT NULL DEFAULT 'none',
	  refund_status VARCHAR(16) NOT NULL DEFAULT 'none',
	  refund_amount DECIMAL(10,2) NULL,
	  refund_reason VARCHAR(255) NULL,
	  created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  updated_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  accepted_at DATETIME(3) NULL,
	  out_for_delivery_at DATETIME(3) NULL,
	  delivered_at DATETIME(3) NULL,
	  cancelled_at DATETIME(3) NULL,
	  closed_at DATETIME(3) NULL,
	  PRIMARY KEY (id),
	  UNIQUE KEY ux_orders_display_id (display_id),
	  KEY ix_orders_user_id (user_id),
	  KEY ix_orders_status (status),
	  KEY ix_orders_is_closed (is_closed),
	  KEY ix_orders_closed_at (closed_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

	CREATE TABLE IF NOT EXISTS order_items (
	  id CHAR(36) NOT NULL,
	  order_id CHAR(36) NOT NULL,
	  menu_name VARCHAR(255) NOT NULL,
	  note VARCHAR(255) NULL,
	  quantity INT NOT NULL,
	  unit_price DECIMAL(10,2) NOT NULL,
	  line_total DECIMAL(10,2) NOT NULL,
	  created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  PRIMARY KEY (id),
	  KEY ix_order_items_order_id (order_id),
	  CONSTRAINT fk_order_items_order FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

	CREATE TABLE IF NOT EXISTS order_events (
	  id CHAR(36) NOT NULL,
	  order_id CHAR(36) NOT NULL,
	  actor_type VARCHAR(16) NOT NULL,
	  actor_id CHAR(36) NULL,
	  event_type VARCHAR(40) NOT NULL,
	  from_status VARCHAR(32) NULL,
	  to_status VARCHAR(32) NULL,
	  meta JSON NULL,
	  created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  PRIMARY KEY (id),
	  KEY ix_order_events_order_id (order_id),
	  KEY ix_order_events_type (event_type),
	  CONSTRAINT fk_order_events_order FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

	CREATE TABLE IF NOT EXISTS order_payments (
	  id CHAR(36) NOT NULL,
	  order_id CHAR(36) NOT NULL,
	  payment_type VARCHAR(16) NOT NULL,
	  amount DECIMAL(10,2) NOT NULL,
	  status VARCHAR(24) NOT NULL,
	  qr_payload VARCHAR(512) NOT NULL,
	  account_id CHAR(36) NULL,
	  receipt_url VARCHAR(512) NULL,
	  receipt_key VARCHAR(255) NULL,
	  receipt_uploaded_at DATETIME(3) NULL,
	  verified_by CHAR(36) NULL,
	  verified_at DATETIME(3) NULL,
	  reject_reason VARCHAR(255) NULL,
	  reject_count INT NOT NULL DEFAULT 0,
	  created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  updated_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  PRIMARY KEY (id),
	  UNIQUE KEY ux_order_payments_order_type (order_id, payment_type),
	  CONSTRAINT fk_order_payments_order FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

	CREATE TABLE IF NOT EXISTS promptpay_accounts (
	  id CHAR(36) NOT NULL,
	  name VARCHAR(128) NOT NULL,
	  phone VARCHAR(20) NOT NULL,
	  is_active TINYINT(1) NOT NULL DEFAULT 0,
	  created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  updated_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  PRIMARY KEY (id),
	  KEY ix_promptpay_accounts_active (is_active)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

	CREATE TABLE IF NOT EXISTS users (
	  id CHAR(36) NOT NULL,
	  email VARCHAR(255) NOT NULL,
	  role VARCHAR(16) NOT NULL DEFAULT 'user',
	  created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  updated_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  PRIMARY KEY (id),
	  UNIQUE KEY ux_users_email (email)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

	CREATE TABLE IF NOT EXISTS sessions (
	  id CHAR(36) NOT NULL,
	  user_id CHAR(36) NOT NULL,
	  token_hash BINARY(32) NOT NULL,
	  expires_at DATETIME(3) NOT NULL,
	  created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  updated_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  last_seen_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  PRIMARY KEY (id),
	  UNIQUE KEY ux_sessions_token_hash (token_hash),
	  KEY ix_sessions_user_id (user_id),
	  CONSTRAINT fk_sessions_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

	CREATE TABLE IF NOT EXISTS admin_permissions (
	  id CHAR(36) NOT NULL,
	  user_id CHAR(36) NOT NULL,
	  permission VARCHAR(64) NOT NULL,
	  created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  PRIMARY KEY (id),
	  UNIQUE KEY ux_admin_permissions_user_perm (user_id, permission),
	  CONSTRAINT fk_admin_permissions_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
	`

	if _, err := sqlDB.Exec(sql); err != nil {
		log.Fatalf("Failed to create tables: %v", err)
	}

	log.Println("✓ all tables created successfully")
}
