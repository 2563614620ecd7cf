package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/memologist/memologist/internal/model"
	"github.com/memologist/memologist/internal/store"
)

const userColumns = `id, name, email, password_hash, salt, role, rate, points, status, status_till, status_changed_at, options, created_at`

func (s *Store) CreateUser(ctx context.Context, user *model.User) (int64, error) {
	if user.Role == "" {
		user.Role = model.RoleUser
	}
	if user.Status == "" {
		user.Status = model.StatusDefault
	}
	if user.StatusChangeDate.IsZero() {
		user.StatusChangeDate = user.CreatedAt
	}
	opts, err := json.Marshal(user.Options)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO users (name, email, password_hash, salt, role, rate, points, status, status_till, status_changed_at, options, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, user.Name, strings.ToLower(user.Email), user.PasswordHash, user.Salt, string(user.Role), user.Rate, user.Points,
		string(user.Status), nullableTime(user.StatusTillDate), user.StatusChangeDate.Unix(), string(opts), user.CreatedAt.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			if strings.Contains(err.Error(), "users.email") {
				return 0, store.ErrDuplicateEmail
			}
			return 0, store.ErrDuplicateName
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	user.ID = id
	return id, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (s *Store) GetUserByName(ctx context.Context, name string) (model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE name = ?`, name)
	return scanUser(row)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, strings.ToLower(strings.TrimSpace(email)))
	return scanUser(row)
}

func (s *Store) UpdateUserRate(ctx context.Context, userID int64, delta int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET rate = rate + ? WHERE id = ?`, delta, userID)
	return err
}

func (s *Store) UpdateUserStatus(ctx context.Context, userID int64, status model.Status, till *time.Time, changedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE users SET status = ?, status_till = ?, status_changed_at = ? WHERE id = ?
`, string(status), nullableTime(till), changedAt.Unix(), userID)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanUser(row scanner) (model.User, error) {
	var u model.User
	var role, status string
	var till sql.NullInt64
	var changed, created int64
	var opts sql.NullString
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Salt, &role, &u.Rate, &u.Points, &status, &till, &changed, &opts, &created); err != nil {
		return model.User{}, notFound(err)
	}
	u.Role = model.Role(role)
	u.Status = model.Status(status)
	if till.Valid {
		t := time.Unix(till.Int64, 0)
		u.StatusTillDate = &t
	}
	u.StatusChangeDate = time.Unix(changed, 0)
	u.CreatedAt = time.Unix(created, 0)
	u.Options = model.DefaultUserOptions()
	if opts.Valid && opts.String != "" {
		_ = json.Unmarshal([]byte(opts.String), &u.Options)
	}
	return u, nil
}
