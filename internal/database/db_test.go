package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriverConfig(t *testing.T) {
	o := Options{User: "fit", Pass: "s3cret", Host: "db.internal", Port: "3307", Name: "fitbook"}
	parsed, err := mysql.ParseDSN(o.driverConfig().FormatDSN())
	require.NoError(t, err)
	assert.Equal(t, "fit", parsed.User)
	assert.Equal(t, "s3cret", parsed.Passwd)
	assert.Equal(t, "tcp", parsed.Net)
	assert.Equal(t, "db.internal:3307", parsed.Addr)
	assert.Equal(t, "fitbook", parsed.DBName)
	assert.True(t, parsed.ParseTime)
	assert.Equal(t, time.UTC, parsed.Loc)
}

func TestApplyPool(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	Options{MaxOpenConns: 8, MaxIdleConns: 20, ConnMaxLifetime: time.Minute}.applyPool(db)
	assert.Equal(t, 8, db.Stats().MaxOpenConnections)
}

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"bookings", "booking_proposals", "booking_reminders", "booking_status_history"} {
		mock.ExpectExec(`CREATE TABLE IF NOT EXISTS ` + table + ` `).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	require.NoError(t, Migrate(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateReportsFailingStep(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS bookings`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS booking_proposals`).WillReturnError(assert.AnError)

	err = Migrate(context.Background(), db)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "migrate step 2")
}
