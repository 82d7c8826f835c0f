package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/zeina-health/companion/internal/model"
)

// migrations are applied in order; the index+1 is the schema version.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		profile    JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS appointments (
		id           TEXT PRIMARY KEY,
		user_id      TEXT NOT NULL,
		expert_id    TEXT NOT NULL,
		expert_name  TEXT NOT NULL,
		expert_image TEXT NOT NULL DEFAULT '',
		date         TEXT NOT NULL,
		time         TEXT NOT NULL,
		status       TEXT NOT NULL,
		notes        TEXT NOT NULL DEFAULT '',
		meeting_link TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS appointments_user_idx ON appointments (user_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS appointments_expert_idx ON appointments (expert_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS reviews (
		id          TEXT PRIMARY KEY,
		item_id     TEXT NOT NULL,
		user_id     TEXT NOT NULL,
		user_name   TEXT NOT NULL DEFAULT '',
		user_avatar TEXT NOT NULL DEFAULT '',
		rating      SMALLINT NOT NULL CHECK (rating BETWEEN 1 AND 5),
		comment     TEXT NOT NULL DEFAULT '',
		date        TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS reviews_item_idx ON reviews (item_id)`,
}

const appointmentColumns = `id, user_id, expert_id, expert_name, expert_image, date, time, status, notes, meeting_link, created_at`

// PostgresStore implements the repositories on PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Appointments returns the store as an AppointmentRepository.
func (s *PostgresStore) Appointments() AppointmentRepository { return postgresAppointments{s.db} }

// Users returns the store as a UserRepository.
func (s *PostgresStore) Users() UserRepository { return postgresUsers{s.db} }

// Reviews returns the store as a ReviewRepository.
func (s *PostgresStore) Reviews() ReviewRepository { return postgresReviews{s.db} }

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate brings the schema up to the latest version.
func (s *PostgresStore) Migrate(ctx context.Context) (int, error) {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version INT PRIMARY KEY)`); err != nil {
		return 0, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var current int
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return current, err
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			tx.Rollback()
			return current, fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, i+1); err != nil {
			tx.Rollback()
			return current, err
		}
		if err := tx.Commit(); err != nil {
			return current, err
		}
		current = i + 1
	}
	return current, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (*model.Appointment, error) {
	var a model.Appointment
	err := row.Scan(&a.ID, &a.UserID, &a.ExpertID, &a.ExpertName, &a.ExpertImage,
		&a.Date, &a.Time, &a.Status, &a.Notes, &a.MeetingLink, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

type postgresAppointments struct{ db *sql.DB }

func (r postgresAppointments) Create(ctx context.Context, a *model.Appointment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO appointments (`+appointmentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.UserID, a.ExpertID, a.ExpertName, a.ExpertImage, a.Date, a.Time, a.Status, a.Notes, a.MeetingLink, a.CreatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

func (r postgresAppointments) GetByID(ctx context.Context, id string) (*model.Appointment, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func (r postgresAppointments) ListForUser(ctx context.Context, userID string) ([]model.Appointment, error) {
	return r.list(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
}

func (r postgresAppointments) ListForExpert(ctx context.Context, expertID string) ([]model.Appointment, error) {
	return r.list(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE expert_id = $1 ORDER BY created_at DESC, id DESC`, expertID)
}

func (r postgresAppointments) list(ctx context.Context, query string, arg string) ([]model.Appointment, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r postgresAppointments) UpdateStatus(ctx context.Context, id string, status model.AppointmentStatus) (*model.Appointment, error) {
	return r.mutate(ctx, id, func(a *model.Appointment) (bool, error) {
		noop, err := transition(a.Status, status)
		if err != nil {
			return false, fmt.Errorf("%w: %s -> %s", err, a.Status, status)
		}
		a.Status = status
		return !noop, nil
	})
}

func (r postgresAppointments) Update(ctx context.Context, id string, patch model.AppointmentPatch) (*model.Appointment, error) {
	return r.mutate(ctx, id, func(a *model.Appointment) (bool, error) {
		patch.Apply(a)
		return true, nil
	})
}

// mutate loads the row under FOR UPDATE, applies fn and writes it back in
// the same transaction.
func (r postgresAppointments) mutate(ctx context.Context, id string, fn func(*model.Appointment) (bool, error)) (*model.Appointment, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	a, err := scanAppointment(tx.QueryRowContext(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	changed, err := fn(a)
	if err != nil {
		return nil, err
	}
	if !changed {
		return a, nil
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE appointments SET date = $2, time = $3, status = $4, notes = $5, meeting_link = $6 WHERE id = $1`,
		a.ID, a.Date, a.Time, a.Status, a.Notes, a.MeetingLink)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return a, nil
}

type postgresUsers struct{ db *sql.DB }

func (r postgresUsers) Get(ctx context.Context, id string) (*model.User, error) {
	var profile []byte
	err := r.db.QueryRowContext(ctx, `SELECT profile FROM users WHERE id = $1`, id).Scan(&profile)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var u model.User
	if err := json.Unmarshal(profile, &u); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return &u, nil
}

func (r postgresUsers) Save(ctx context.Context, u *model.User) error {
	profile, err := json.Marshal(u)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (id, profile, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET profile = $2, updated_at = now()`,
		u.ID, profile)
	return err
}

type postgresReviews struct{ db *sql.DB }

func (r postgresReviews) Add(ctx context.Context, review *model.Review) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reviews (id, item_id, user_id, user_name, user_avatar, rating, comment, date) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		review.ID, review.ItemID, review.UserID, review.UserName, review.UserAvatar, review.Rating, review.Comment, review.Date)
	return err
}

func (r postgresReviews) ListForItem(ctx context.Context, itemID string) ([]model.Review, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, item_id, user_id, user_name, user_avatar, rating, comment, date FROM reviews WHERE item_id = $1 ORDER BY date`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Review{}
	for rows.Next() {
		var rv model.Review
		if err := rows.Scan(&rv.ID, &rv.ItemID, &rv.UserID, &rv.UserName, &rv.UserAvatar, &rv.Rating, &rv.Comment, &rv.Date); err != nil {
			return nil, err
		}
		out = append(out, rv)
	}
	return out, rows.Err()
}
