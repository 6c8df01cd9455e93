package slip

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/campioncollege/beadle-core/internal/infrastructure/database"
)

// Repository defines the interface for slip persistence operations.
type Repository interface {
	Create(ctx context.Context, s *Slip) error
	GetByID(ctx context.Context, id int64) (*Slip, error)
	List(ctx context.Context, f Filter) ([]Slip, error)
	Count(ctx context.Context, f Filter) (int, error)
	Review(ctx context.Context, id, reviewer int64, comment string) (*Slip, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed slip repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const slipColumns = `id, submitted_by, form_class, subject, teacher_name, class_date, period,
	double_session, teacher_present, teacher_arrived_at, absent_count, notes,
	status, reviewed_by, reviewed_at, review_comment, created_at`

// Create stores a new pending slip and fills in its ID, status and
// creation time. Callers validate first.
func (r *SQLiteRepository) Create(ctx context.Context, s *Slip) error {
	now := database.Now()
	const query = `INSERT INTO slips (submitted_by, form_class, subject, teacher_name, class_date,
		period, double_session, teacher_present, teacher_arrived_at, absent_count, notes,
		status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := r.db.ExecContext(ctx, query,
		s.SubmittedBy, s.FormClass, s.Subject, s.TeacherName, s.ClassDate,
		s.Period, s.DoubleSession, s.TeacherPresent, nullClock(s.TeacherArrivedAt),
		s.AbsentCount, s.Notes, StatusPending, database.Timestamp(now))
	if err != nil {
		return fmt.Errorf("inserting slip: %w", err)
	}

	s.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading slip id: %w", err)
	}
	s.Status = StatusPending
	s.CreatedAt = now
	return nil
}

// GetByID returns a single slip.
func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*Slip, error) {
	return scanSlip(r.db.QueryRowContext(ctx, "SELECT "+slipColumns+" FROM slips WHERE id = ?", id))
}

// List returns slips matching f, newest class first.
func (r *SQLiteRepository) List(ctx context.Context, f Filter) ([]Slip, error) {
	where, args := f.where()
	limit, offset := f.page()
	query := "SELECT " + slipColumns + " FROM slips" + where +
		" ORDER BY class_date DESC, period DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying slips: %w", err)
	}
	defer rows.Close()

	slips := []Slip{}
	for rows.Next() {
		s, err := scanSlip(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning slip row: %w", err)
		}
		slips = append(slips, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating slip rows: %w", err)
	}
	return slips, nil
}

// Count returns how many slips match f, ignoring its page.
func (r *SQLiteRepository) Count(ctx context.Context, f Filter) (int, error) {
	where, args := f.where()
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM slips"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting slips: %w", err)
	}
	return n, nil
}

// Review marks a pending slip reviewed. A slip is reviewed at most once.
func (r *SQLiteRepository) Review(ctx context.Context, id, reviewer int64, comment string) (*Slip, error) {
	var reviewed *Slip
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		current, err := scanSlip(tx.QueryRowContext(ctx, "SELECT "+slipColumns+" FROM slips WHERE id = ?", id))
		if err != nil {
			return err
		}
		if current.Status == StatusReviewed {
			return ErrAlreadyReviewed
		}

		now := database.Now()
		if _, err := tx.ExecContext(ctx,
			`UPDATE slips SET status = ?, reviewed_by = ?, reviewed_at = ?, review_comment = ?
			 WHERE id = ?`,
			StatusReviewed, reviewer, database.Timestamp(now), strings.TrimSpace(comment), id,
		); err != nil {
			return fmt.Errorf("reviewing slip %d: %w", id, err)
		}

		current.Status = StatusReviewed
		current.ReviewedBy = &reviewer
		current.ReviewedAt = &now
		current.ReviewComment = strings.TrimSpace(comment)
		reviewed = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reviewed, nil
}

// where renders the filter as a SQL WHERE clause.
func (f Filter) where() (string, []any) {
	var conds []string
	var args []any
	if f.SubmittedBy != 0 {
		conds = append(conds, "submitted_by = ?")
		args = append(args, f.SubmittedBy)
	}
	if f.FormClass != "" {
		conds = append(conds, "form_class = ?")
		args = append(args, strings.ToUpper(f.FormClass))
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if f.From != "" {
		conds = append(conds, "class_date >= ?")
		args = append(args, f.From)
	}
	if f.To != "" {
		conds = append(conds, "class_date <= ?")
		args = append(args, f.To)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (f Filter) page() (int, int) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)
	return limit, max(f.Offset, 0)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSlip(row scanner) (*Slip, error) {
	var s Slip
	var arrived, reviewedAt sql.NullString
	var reviewedBy sql.NullInt64
	var createdAt string

	err := row.Scan(&s.ID, &s.SubmittedBy, &s.FormClass, &s.Subject, &s.TeacherName, &s.ClassDate,
		&s.Period, &s.DoubleSession, &s.TeacherPresent, &arrived, &s.AbsentCount, &s.Notes,
		&s.Status, &reviewedBy, &reviewedAt, &s.ReviewComment, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSlipNotFound
		}
		return nil, fmt.Errorf("scanning slip: %w", err)
	}

	s.TeacherArrivedAt = arrived.String
	if reviewedBy.Valid {
		s.ReviewedBy = &reviewedBy.Int64
	}
	if reviewedAt.Valid {
		t := database.ParseTimestamp(reviewedAt.String)
		s.ReviewedAt = &t
	}
	s.CreatedAt = database.ParseTimestamp(createdAt)
	return &s, nil
}

func nullClock(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
