package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/lehigh-university-libraries/calsnap/internal/common"
	"github.com/lehigh-university-libraries/calsnap/internal/models"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const timeLayout = time.RFC3339Nano

// SQLiteStore is the durable Store. All access goes through a single
// connection so writers never contend for the database lock.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the database at dsn and applies
// pending migrations.
func OpenSQLite(dsn string) (*SQLiteStore, error) {
	db, err := openDB(dsn)
	if err != nil {
		return nil, err
	}
	if _, _, err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return newSQLiteStore(db), nil
}

// Migrate applies pending migrations to the database at dsn and reports the
// resulting schema version.
func Migrate(dsn string) (uint, bool, error) {
	db, err := openDB(dsn)
	if err != nil {
		return 0, false, err
	}
	defer db.Close()
	return runMigrations(db)
}

func newSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func openDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", withPragmas(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite database: %w", err)
	}
	return db, nil
}

func withPragmas(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func runMigrations(db *sql.DB) (uint, bool, error) {
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return 0, false, fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return 0, false, fmt.Errorf("failed to create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return 0, false, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, false, fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const userColumns = `id, username, password, google_access_token, google_refresh_token, created_at`

func (s *SQLiteStore) CreateUser(ctx context.Context, username, password string) (*models.User, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password, created_at) VALUES (?, ?, ?)`,
		username, password, s.now().Format(timeLayout))
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: username %q already taken", common.ErrValidation, username)
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s.GetUser(ctx, id)
}

func (s *SQLiteStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err != nil {
		return nil, notFound(err, "user %d", id)
	}
	return u, nil
}

func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	u, err := scanUser(row)
	if err != nil {
		return nil, notFound(err, "user %q", username)
	}
	return u, nil
}

func (s *SQLiteStore) UpdateUserTokens(ctx context.Context, id int64, accessToken string, refreshToken *string) (*models.User, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET google_access_token = ?, google_refresh_token = COALESCE(?, google_refresh_token) WHERE id = ?`,
		accessToken, nullString(refreshToken), id)
	if err := affectedOne(res, err, "user %d", id); err != nil {
		return nil, err
	}
	return s.GetUser(ctx, id)
}

const scheduleColumns = `id, user_id, filename, original_text, processing_status, created_at`

func (s *SQLiteStore) CreateScheduleImage(ctx context.Context, userID *int64, filename string) (*models.ScheduleImage, error) {
	var uid sql.NullInt64
	if userID != nil {
		uid = sql.NullInt64{Int64: *userID, Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO schedule_images (user_id, filename, processing_status, created_at) VALUES (?, ?, ?, ?)`,
		uid, filename, string(models.StatusProcessing), s.now().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s.GetScheduleImage(ctx, id)
}

func (s *SQLiteStore) GetScheduleImage(ctx context.Context, id int64) (*models.ScheduleImage, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedule_images WHERE id = ?`, id)
	img, err := scanSchedule(row)
	if err != nil {
		return nil, notFound(err, "schedule image %d", id)
	}
	return img, nil
}

func (s *SQLiteStore) UpdateScheduleImageStatus(ctx context.Context, id int64, status models.ProcessingStatus, text *string) (*models.ScheduleImage, error) {
	var (
		res sql.Result
		err error
	)
	if text != nil {
		res, err = s.db.ExecContext(ctx,
			`UPDATE schedule_images SET processing_status = ?, original_text = ? WHERE id = ?`,
			string(status), *text, id)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE schedule_images SET processing_status = ? WHERE id = ?`,
			string(status), id)
	}
	if err := affectedOne(res, err, "schedule image %d", id); err != nil {
		return nil, err
	}
	return s.GetScheduleImage(ctx, id)
}

func (s *SQLiteStore) ListScheduleImagesByUser(ctx context.Context, userID int64) ([]models.ScheduleImage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedule_images WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := []models.ScheduleImage{}
	for rows.Next() {
		img, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, *img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

const eventColumns = `id, schedule_image_id, title, date, start_time, end_time, location, description, google_event_id, is_confirmed, created_at`

func (s *SQLiteStore) CreateExtractedEvents(ctx context.Context, scheduleImageID int64, drafts []models.EventDraft) ([]models.ExtractedEvent, error) {
	ids := make([]int64, 0, len(drafts))
	err := withTx(ctx, s.db, func(ctx context.Context, tx dbtx) error {
		var exists int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM schedule_images WHERE id = ?`, scheduleImageID).Scan(&exists)
		if err != nil {
			return notFound(err, "schedule image %d", scheduleImageID)
		}

		createdAt := s.now().Format(timeLayout)
		for _, d := range drafts {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO extracted_events (schedule_image_id, title, date, start_time, end_time, location, description, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				scheduleImageID, d.Title, d.Date, d.StartTime,
				nullString(d.EndTime), nullString(d.Location), nullString(d.Description), createdAt)
			if err != nil {
				return fmt.Errorf("db error: %w", err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("db error: %w", err)
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	created := make([]models.ExtractedEvent, 0, len(ids))
	for _, id := range ids {
		e, err := s.GetExtractedEvent(ctx, id)
		if err != nil {
			return nil, err
		}
		created = append(created, *e)
	}
	return created, nil
}

func (s *SQLiteStore) GetExtractedEvent(ctx context.Context, id int64) (*models.ExtractedEvent, error) {
	return getEvent(ctx, s.db, id)
}

func getEvent(ctx context.Context, db dbtx, id int64) (*models.ExtractedEvent, error) {
	row := db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM extracted_events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if err != nil {
		return nil, notFound(err, "event %d", id)
	}
	return e, nil
}

func (s *SQLiteStore) ListExtractedEvents(ctx context.Context, scheduleImageID int64) ([]models.ExtractedEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM extracted_events WHERE schedule_image_id = ? ORDER BY id`, scheduleImageID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := []models.ExtractedEvent{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (s *SQLiteStore) UpdateExtractedEvent(ctx context.Context, id int64, update models.EventUpdate) (*models.ExtractedEvent, error) {
	var updated *models.ExtractedEvent
	err := withTx(ctx, s.db, func(ctx context.Context, tx dbtx) error {
		e, err := getEvent(ctx, tx, id)
		if err != nil {
			return err
		}
		update.Apply(e)
		_, err = tx.ExecContext(ctx,
			`UPDATE extracted_events
			 SET title = ?, date = ?, start_time = ?, end_time = ?, location = ?, description = ?, is_confirmed = ?
			 WHERE id = ?`,
			e.Title, e.Date, e.StartTime,
			nullString(e.EndTime), nullString(e.Location), nullString(e.Description), e.IsConfirmed, id)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		updated = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *SQLiteStore) DeleteExtractedEvent(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM extracted_events WHERE id = ?`, id)
	return affectedOne(res, err, "event %d", id)
}

func (s *SQLiteStore) SetGoogleEventID(ctx context.Context, id int64, googleEventID string) (*models.ExtractedEvent, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE extracted_events SET google_event_id = ? WHERE id = ?`, googleEventID, id)
	if err := affectedOne(res, err, "event %d", id); err != nil {
		return nil, err
	}
	return s.GetExtractedEvent(ctx, id)
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u               models.User
		access, refresh sql.NullString
		createdAt       string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Password, &access, &refresh, &createdAt); err != nil {
		return nil, err
	}
	u.GoogleAccessToken = stringPtr(access)
	u.GoogleRefreshToken = stringPtr(refresh)
	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	u.CreatedAt = t
	return &u, nil
}

func scanSchedule(row rowScanner) (*models.ScheduleImage, error) {
	var (
		img       models.ScheduleImage
		userID    sql.NullInt64
		text      sql.NullString
		status    string
		createdAt string
	)
	if err := row.Scan(&img.ID, &userID, &img.Filename, &text, &status, &createdAt); err != nil {
		return nil, err
	}
	if userID.Valid {
		uid := userID.Int64
		img.UserID = &uid
	}
	img.OriginalText = stringPtr(text)
	img.ProcessingStatus = models.ProcessingStatus(status)
	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	img.CreatedAt = t
	return &img, nil
}

func scanEvent(row rowScanner) (*models.ExtractedEvent, error) {
	var (
		e                                    models.ExtractedEvent
		endTime, location, desc, googleEvent sql.NullString
		createdAt                            string
	)
	err := row.Scan(&e.ID, &e.ScheduleImageID, &e.Title, &e.Date, &e.StartTime,
		&endTime, &location, &desc, &googleEvent, &e.IsConfirmed, &createdAt)
	if err != nil {
		return nil, err
	}
	e.EndTime = stringPtr(endTime)
	e.Location = stringPtr(location)
	e.Description = stringPtr(desc)
	e.GoogleEventID = stringPtr(googleEvent)
	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	e.CreatedAt = t
	return &e, nil
}

// notFound maps sql.ErrNoRows to common.ErrNotFound and wraps anything else.
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", common.ErrNotFound, fmt.Sprintf(format, args...))
	}
	if errors.Is(err, common.ErrNotFound) {
		return err
	}
	return fmt.Errorf("db error: %w", err)
}

func affectedOne(res sql.Result, err error, format string, args ...any) error {
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", common.ErrNotFound, fmt.Sprintf(format, args...))
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
