package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema holds the DDL for the booking tables. Statements are idempotent
// so Migrate can run on every start.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS bookings (
		id                  CHAR(36)     NOT NULL PRIMARY KEY,
		requester_id        VARCHAR(64)  NOT NULL,
		provider_id         VARCHAR(64)  NOT NULL,
		kind                VARCHAR(16)  NOT NULL,
		title               VARCHAR(255) NULL,
		session_date        CHAR(10)     NOT NULL,
		session_time        CHAR(5)      NOT NULL,
		duration_minutes    INT          NOT NULL,
		venue_id            VARCHAR(64)  NOT NULL,
		price_cents         BIGINT       NOT NULL,
		currency            CHAR(3)      NOT NULL,
		payment_method      VARCHAR(16)  NOT NULL,
		payment_status      VARCHAR(24)  NOT NULL,
		payment_ref         VARCHAR(255) NULL,
		cancellation_policy VARCHAR(16)  NOT NULL,
		status              VARCHAR(24)  NOT NULL,
		pre_proposal_status VARCHAR(24)  NULL,
		active_proposal_id  CHAR(36)     NULL,
		negotiation_rounds  INT          NOT NULL DEFAULT 0,
		reason              TEXT         NULL,
		cancelled_by        VARCHAR(16)  NULL,
		payment_due_date    DATETIME(6)  NULL,
		reminder_checkpoint DATETIME(6)  NULL,
		window_opened_at    DATETIME(6)  NULL,
		payment_attempt     VARCHAR(100) NULL,
		venue_code_hash     VARCHAR(100) NULL,
		created_at          DATETIME(6)  NOT NULL,
		updated_at          DATETIME(6)  NOT NULL,
		confirmed_at        DATETIME(6)  NULL,
		cancelled_at        DATETIME(6)  NULL,
		completed_at        DATETIME(6)  NULL,
		version             BIGINT       NOT NULL,
		KEY idx_bookings_status (status),
		KEY idx_bookings_requester (requester_id),
		KEY idx_bookings_provider (provider_id),
		KEY idx_bookings_due (payment_due_date)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS booking_proposals (
		id               CHAR(36)    NOT NULL PRIMARY KEY,
		booking_id       CHAR(36)    NOT NULL,
		proposed_by      VARCHAR(16) NOT NULL,
		actor_id         VARCHAR(64) NOT NULL,
		changes          JSON        NOT NULL,
		keep_original    BOOLEAN     NOT NULL DEFAULT FALSE,
		message          TEXT        NULL,
		status           VARCHAR(16) NOT NULL,
		round            INT         NOT NULL,
		response_message TEXT        NULL,
		responded_by     VARCHAR(64) NULL,
		responded_at     DATETIME(6) NULL,
		superseded_by    CHAR(36)    NULL,
		created_at       DATETIME(6) NOT NULL,
		expires_at       DATETIME(6) NOT NULL,
		KEY idx_proposals_booking (booking_id),
		KEY idx_proposals_pending (status, expires_at),
		CONSTRAINT fk_proposals_booking FOREIGN KEY (booking_id) REFERENCES bookings (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS booking_reminders (
		id         CHAR(36)    NOT NULL PRIMARY KEY,
		booking_id CHAR(36)    NOT NULL,
		seq        INT         NOT NULL,
		fire_at    DATETIME(6) NOT NULL,
		final      BOOLEAN     NOT NULL DEFAULT FALSE,
		status     VARCHAR(16) NOT NULL,
		fired_at   DATETIME(6) NULL,
		KEY idx_reminders_booking (booking_id, fire_at),
		CONSTRAINT fk_reminders_booking FOREIGN KEY (booking_id) REFERENCES bookings (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS booking_status_history (
		id           BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		booking_id   CHAR(36)    NOT NULL,
		from_status  VARCHAR(24) NOT NULL,
		to_status    VARCHAR(24) NOT NULL,
		trigger_name VARCHAR(32) NOT NULL,
		actor_id     VARCHAR(64) NULL,
		reason       TEXT        NULL,
		changed_at   DATETIME(6) NOT NULL,
		KEY idx_history_booking (booking_id),
		CONSTRAINT fk_history_booking FOREIGN KEY (booking_id) REFERENCES bookings (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates the booking tables when they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
