package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"resumehub/internal/domain/models"
	"resumehub/internal/storage"
)

type Storage struct {
	db *sql.DB
}

// New returns a new instance of the Storage.
func New(storagePath string) (*Storage, error) {
	const op = "storage.sqlite.New"
	db, err := sql.Open("sqlite3", storagePath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Storage{db: db}, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// SaveUser creates the account row and its profile row in one transaction.
// Exactly one of email+passHash or clientID must be set; the caller has
// already validated that.
func (s *Storage) SaveUser(ctx context.Context, email string, passHash []byte, clientID string, info models.UserInfo) (int64, error) {
	const op = "storage.sqlite.SaveUser"

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		"INSERT INTO users (email, pass_hash, client_id) VALUES (?, ?, ?)",
		nullString(email), passHash, nullString(clientID),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%s: %w", op, storage.ErrUserAlreadyExists)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	userID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO user_infos (user_id, name, age, gender) VALUES (?, ?, ?, ?)",
		userID, info.Name, info.Age, info.Gender,
	)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return userID, nil
}

func (s *Storage) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.sqlite.UserByEmail"
	row := s.db.QueryRowContext(ctx,
		"SELECT id, email, pass_hash, client_id, created_at, updated_at FROM users WHERE email = ?", email)
	return scanUser(row, op)
}

func (s *Storage) UserByClientID(ctx context.Context, clientID string) (*models.User, error) {
	const op = "storage.sqlite.UserByClientID"
	row := s.db.QueryRowContext(ctx,
		"SELECT id, email, pass_hash, client_id, created_at, updated_at FROM users WHERE client_id = ?", clientID)
	return scanUser(row, op)
}

func (s *Storage) UserByID(ctx context.Context, userID int64) (*models.User, error) {
	const op = "storage.sqlite.UserByID"
	row := s.db.QueryRowContext(ctx,
		"SELECT id, email, pass_hash, client_id, created_at, updated_at FROM users WHERE id = ?", userID)
	return scanUser(row, op)
}

func (s *Storage) UserInfo(ctx context.Context, userID int64) (*models.UserInfo, error) {
	const op = "storage.sqlite.UserInfo"
	row := s.db.QueryRowContext(ctx,
		"SELECT user_id, name, age, gender FROM user_infos WHERE user_id = ?", userID)

	var info models.UserInfo
	err := row.Scan(&info.UserID, &info.Name, &info.Age, &info.Gender)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserInfoNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &info, nil
}

// UpdateUserInfo writes the merged profile and its change history rows in
// one transaction, so a client disconnect never leaves a half-applied patch.
func (s *Storage) UpdateUserInfo(ctx context.Context, info models.UserInfo, histories []models.UserHistory) error {
	const op = "storage.sqlite.UpdateUserInfo"

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		"UPDATE user_infos SET name = ?, age = ?, gender = ? WHERE user_id = ?",
		info.Name, info.Age, info.Gender, info.UserID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	} else if affected == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrUserInfoNotFound)
	}

	for _, h := range histories {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO user_histories (user_id, changed_field, old_value, new_value) VALUES (?, ?, ?, ?)",
			h.UserID, h.ChangedField, h.OldValue, h.NewValue,
		)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) RefreshToken(ctx context.Context, userID int64) (*models.RefreshToken, error) {
	const op = "storage.sqlite.RefreshToken"
	row := s.db.QueryRowContext(ctx,
		"SELECT user_id, refresh_token, ip, created_at, updated_at FROM token_storage WHERE user_id = ?", userID)

	var token models.RefreshToken
	err := row.Scan(&token.UserID, &token.Token, &token.IP, &token.CreatedAt, &token.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrTokenNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &token, nil
}

// SaveRefreshToken is a conditional insert: the primary key on user_id makes
// concurrent first sign-ins resolve to exactly one winner, losers get
// storage.ErrTokenExists and re-read the winning record.
func (s *Storage) SaveRefreshToken(ctx context.Context, userID int64, token string, ip string) (*models.RefreshToken, error) {
	const op = "storage.sqlite.SaveRefreshToken"

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO token_storage (user_id, refresh_token, ip) VALUES (?, ?, ?)",
		userID, token, ip,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrTokenExists)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s.RefreshToken(ctx, userID)
}

// RotateRefreshToken replaces the stored token in place with a single
// update keyed by user, preserving ip and created_at.
func (s *Storage) RotateRefreshToken(ctx context.Context, userID int64, token string) (*models.RefreshToken, error) {
	const op = "storage.sqlite.RotateRefreshToken"

	result, err := s.db.ExecContext(ctx,
		"UPDATE token_storage SET refresh_token = ?, updated_at = CURRENT_TIMESTAMP WHERE user_id = ?",
		token, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if affected, err := result.RowsAffected(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	} else if affected == 0 {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrTokenNotFound)
	}
	return s.RefreshToken(ctx, userID)
}

func (s *Storage) SaveResume(ctx context.Context, userID int64, title, content string) (int64, error) {
	const op = "storage.sqlite.SaveResume"

	result, err := s.db.ExecContext(ctx,
		"INSERT INTO resumes (user_id, title, content, status) VALUES (?, ?, ?, ?)",
		userID, title, content, models.StatusApply,
	)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return result.LastInsertId()
}

func (s *Storage) Resumes(ctx context.Context, orderDesc bool) ([]models.Resume, error) {
	const op = "storage.sqlite.Resumes"

	order := "ASC"
	if orderDesc {
		order = "DESC"
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.user_id, ui.name, r.title, r.content, r.status, r.created_at, r.updated_at
		 FROM resumes r
		 JOIN user_infos ui ON ui.user_id = r.user_id
		 ORDER BY r.created_at `+order)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var resumes []models.Resume
	for rows.Next() {
		var r models.Resume
		err := rows.Scan(&r.ID, &r.UserID, &r.AuthorName, &r.Title, &r.Content, &r.Status, &r.CreatedAt, &r.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		resumes = append(resumes, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return resumes, nil
}

func (s *Storage) Resume(ctx context.Context, resumeID int64) (*models.Resume, error) {
	const op = "storage.sqlite.Resume"

	row := s.db.QueryRowContext(ctx,
		`SELECT r.id, r.user_id, ui.name, r.title, r.content, r.status, r.created_at, r.updated_at
		 FROM resumes r
		 JOIN user_infos ui ON ui.user_id = r.user_id
		 WHERE r.id = ?`, resumeID)

	var r models.Resume
	err := row.Scan(&r.ID, &r.UserID, &r.AuthorName, &r.Title, &r.Content, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrResumeNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &r, nil
}

func (s *Storage) UpdateResume(ctx context.Context, resumeID int64, title, content, status string) error {
	const op = "storage.sqlite.UpdateResume"

	result, err := s.db.ExecContext(ctx,
		"UPDATE resumes SET title = ?, content = ?, status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		title, content, status, resumeID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	} else if affected == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrResumeNotFound)
	}
	return nil
}

func (s *Storage) DeleteResume(ctx context.Context, resumeID int64) error {
	const op = "storage.sqlite.DeleteResume"

	result, err := s.db.ExecContext(ctx, "DELETE FROM resumes WHERE id = ?", resumeID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	} else if affected == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrResumeNotFound)
	}
	return nil
}

func scanUser(row *sql.Row, op string) (*models.User, error) {
	var user models.User
	var email, clientID sql.NullString
	var passHash []byte

	err := row.Scan(&user.ID, &email, &passHash, &clientID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user.Email = email.String
	user.ClientID = clientID.String
	user.PassHash = passHash
	return &user, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
