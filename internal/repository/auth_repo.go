package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"tasmota_mqtt/internal/models"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Ensure implementation of Authorization interface at compile time.
var _ Authorization = (*UserRepository)(nil)

var ErrNoSuchUser = errors.New("no such user")

const (
	insertUserSQL           = `INSERT INTO users (username, password_hash, can_control) VALUES (?, ?, ?)`
	selectUserByUsernameSQL = `SELECT id, username, password_hash, can_control FROM users WHERE username = ?`
	selectUserByIDSQL       = `SELECT id, username, password_hash, can_control FROM users WHERE id = ?`
	countUsersSQL           = `SELECT COUNT(*) FROM users`
	updateCanControlSQL     = `UPDATE users SET can_control = ? WHERE username = ?`
)

// Create inserts a new user and returns its ID.
func (r *UserRepository) Create(username, passwordHash string, canControl bool) (int, error) {
	res, err := r.db.Exec(insertUserSQL, username, passwordHash, canControl)
	if err != nil {
		return 0, fmt.Errorf("insert user %q: %w", username, err)
	}
	lastID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id for user %q: %w", username, err)
	}
	return int(lastID), nil
}

// GetByUsername fetches a user by username. Returns (nil, nil) if not found.
func (r *UserRepository) GetByUsername(username string) (*models.User, error) {
	return r.getOne(selectUserByUsernameSQL, username)
}

// GetByID fetches a user by id. Returns (nil, nil) if not found.
func (r *UserRepository) GetByID(id int) (*models.User, error) {
	return r.getOne(selectUserByIDSQL, id)
}

func (r *UserRepository) getOne(query string, arg any) (*models.User, error) {
	var u models.User
	err := r.db.QueryRow(query, arg).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CanControl)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select user %v: %w", arg, err)
	}
	return &u, nil
}

// Count returns the number of registered users.
func (r *UserRepository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow(countUsersSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// SetCanControl grants or revokes the relay control permission.
func (r *UserRepository) SetCanControl(username string, canControl bool) error {
	res, err := r.db.Exec(updateCanControlSQL, canControl, username)
	if err != nil {
		return fmt.Errorf("update user %q: %w", username, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for user %q: %w", username, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %q", ErrNoSuchUser, username)
	}
	return nil
}
