package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sosdesk/config"
	"sosdesk/lifecycle"
	"sosdesk/models"

	"github.com/apex/log"
	"github.com/go-sql-driver/mysql"
)

// ErrReportNotFound is returned when no report has the requested id.
var ErrReportNotFound = errors.New("report not found")

const reportColumns = `id, name, phone, complaint, latitude, longitude, accuracy, s2_cell,
	audio_url, video_url, mode, status, acknowledged_by, acknowledged_at, submitted_at`

// Database handles all database operations
type Database struct {
	db *sql.DB
}

// NewDatabase creates a new database connection
func NewDatabase(cfg *config.Config) (*Database, error) {
	db, err := sql.Open("mysql", dataSourceName(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := waitForDB(db, 60*time.Second); err != nil {
		db.Close()
		return nil, err
	}

	log.Infof("Database connected successfully to %s:%s/%s", cfg.DBHost, cfg.DBPort, cfg.DBName)

	return &Database{db: db}, nil
}

// dataSourceName pins the session to UTC so submitted_at and acknowledged_at are written and
// read in the same zone as the time.UTC location used for scanning.
func dataSourceName(cfg *config.Config) string {
	dsn := mysql.Config{
		User:                 cfg.DBUser,
		Passwd:               cfg.DBPassword,
		Net:                  "tcp",
		Addr:                 cfg.DBHost + ":" + cfg.DBPort,
		DBName:               cfg.DBName,
		ParseTime:            true,
		Loc:                  time.UTC,
		AllowNativePasswords: true,
		Params:               map[string]string{"charset": "utf8mb4", "time_zone": "'+00:00'"},
	}
	return dsn.FormatDSN()
}

// New wraps an already opened connection pool.
func New(db *sql.DB) *Database {
	return &Database{db: db}
}

// waitForDB pings with exponential backoff until maxWait elapses.
func waitForDB(db *sql.DB, maxWait time.Duration) error {
	deadline := time.Now().Add(maxWait)
	waitInterval := time.Second
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		pingErr := db.PingContext(ctx)
		cancel()
		if pingErr == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("database ping timeout after %v: %w", maxWait, pingErr)
		}
		log.Warnf("Database connection failed, retrying in %v: %v", waitInterval, pingErr)
		time.Sleep(waitInterval)
		waitInterval *= 2
		if waitInterval > 30*time.Second {
			waitInterval = 30 * time.Second
		}
	}
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// EnsureReportsTable creates the reports table if it doesn't exist
func (d *Database) EnsureReportsTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS reports (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(255) NOT NULL DEFAULT '',
			phone VARCHAR(64) NOT NULL DEFAULT '',
			complaint TEXT,
			latitude DOUBLE NULL,
			longitude DOUBLE NULL,
			accuracy DOUBLE NULL,
			s2_cell VARCHAR(32) NOT NULL DEFAULT '',
			audio_url VARCHAR(1024) NULL,
			video_url VARCHAR(1024) NULL,
			mode ENUM('video', 'audio', 'form') NOT NULL DEFAULT 'form',
			status ENUM('pending', 'acknowledged') NOT NULL DEFAULT 'pending',
			acknowledged_by BIGINT NULL,
			acknowledged_at TIMESTAMP(6) NULL,
			submitted_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
			INDEX idx_submitted_at (submitted_at),
			INDEX idx_status_submitted_at (status, submitted_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4
	`

	_, err := d.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create reports table: %w", err)
	}

	return nil
}

// CreateReport inserts a pending report and returns it as stored, with id and submitted_at
// assigned by the database.
func (d *Database) CreateReport(ctx context.Context, r *models.Report) (*models.Report, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var lat, lng, acc sql.NullFloat64
	if r.Location != nil {
		lat = sql.NullFloat64{Float64: r.Location.Latitude, Valid: true}
		lng = sql.NullFloat64{Float64: r.Location.Longitude, Valid: true}
		if r.Location.Accuracy != nil {
			acc = sql.NullFloat64{Float64: *r.Location.Accuracy, Valid: true}
		}
	}

	result, err := tx.ExecContext(ctx, `INSERT
	  INTO reports (name, phone, complaint, latitude, longitude, accuracy, s2_cell, audio_url, video_url, mode, status)
	  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Name, r.Phone, r.ComplaintText, lat, lng, acc, r.Cell,
		nullString(r.AudioURL), nullString(r.VideoURL), string(r.Mode), string(models.StatusPending))
	logResult("createReport", result, err, true)
	if err != nil {
		return nil, fmt.Errorf("failed to insert report: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get report id: %w", err)
	}

	stored, err := scanReport(tx.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to read created report %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit report: %w", err)
	}
	return stored, nil
}

// GetReport returns a single report by id
func (d *Database) GetReport(ctx context.Context, id int64) (*models.Report, error) {
	r, err := scanReport(d.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report %d: %w", id, err)
	}
	return r, nil
}

// ListReports returns reports newest first. With a positive visibilityDelay, pending reports
// younger than the delay on the database clock are left out; acknowledged reports are
// always returned.
func (d *Database) ListReports(ctx context.Context, visibilityDelay time.Duration) ([]models.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports`
	var args []interface{}
	if visibilityDelay > 0 {
		query += ` WHERE status = 'acknowledged' OR submitted_at <= CURRENT_TIMESTAMP(6) - INTERVAL ? MICROSECOND`
		args = append(args, visibilityDelay.Microseconds())
	}
	query += ` ORDER BY submitted_at DESC, id DESC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	reports := []models.Report{}
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, *r)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reports: %w", err)
	}

	return reports, nil
}

// AcknowledgeReport marks a report acknowledged by operatorID and returns the stored record.
// Under lifecycle.PolicyFirstWins an already acknowledged report keeps its first operator.
func (d *Database) AcknowledgeReport(ctx context.Context, id, operatorID int64, policy lifecycle.Policy) (*models.Report, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `UPDATE reports
		SET status = 'acknowledged', acknowledged_by = ?, acknowledged_at = CURRENT_TIMESTAMP(6)
		WHERE id = ?`
	if lifecycle.RequiresPending(policy) {
		query += ` AND status = 'pending'`
	}
	result, err := tx.ExecContext(ctx, query, operatorID, id)
	logResult("acknowledgeReport", result, err, false)
	if err != nil {
		return nil, fmt.Errorf("failed to acknowledge report %d: %w", id, err)
	}

	r, err := scanReport(tx.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read acknowledged report %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit acknowledgment: %w", err)
	}
	return r, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReport(row rowScanner) (*models.Report, error) {
	var (
		r              models.Report
		complaint      sql.NullString
		lat, lng, acc  sql.NullFloat64
		audio, video   sql.NullString
		mode, status   string
		acknowledgedBy sql.NullInt64
		acknowledgedAt sql.NullTime
	)
	err := row.Scan(
		&r.ID,
		&r.Name,
		&r.Phone,
		&complaint,
		&lat,
		&lng,
		&acc,
		&r.Cell,
		&audio,
		&video,
		&mode,
		&status,
		&acknowledgedBy,
		&acknowledgedAt,
		&r.SubmittedAt,
	)
	if err != nil {
		return nil, err
	}

	r.ComplaintText = complaint.String
	if lat.Valid && lng.Valid {
		r.Location = &models.Location{Latitude: lat.Float64, Longitude: lng.Float64}
		if acc.Valid {
			a := acc.Float64
			r.Location.Accuracy = &a
		}
	}
	r.AudioURL = audio.String
	r.VideoURL = video.String
	r.Attachment = r.PrimaryAttachment()
	r.Mode = models.Mode(mode)
	r.Status = models.Status(status)
	if acknowledgedBy.Valid {
		op := acknowledgedBy.Int64
		r.AcknowledgedBy = &op
	}
	if acknowledgedAt.Valid {
		at := acknowledgedAt.Time
		r.AcknowledgedAt = &at
	}
	return &r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// logResult logs failed or unexpected writes. With expectOne it warns when the write did
// not touch exactly one row.
func logResult(msgPrefix string, r sql.Result, e error, expectOne bool) {
	if e != nil {
		log.Errorf("%s: query failed: %v", msgPrefix, e)
		return
	}
	rows, err := r.RowsAffected()
	if err != nil {
		log.Errorf("%s: failed to get status of db op: %v", msgPrefix, err)
		return
	}
	if expectOne && rows != 1 {
		log.Warnf("%s: expected to affect 1 row, affected %d", msgPrefix, rows)
	}
}
