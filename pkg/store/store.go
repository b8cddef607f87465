// Package store persists enrolled users behind a GORM database, supporting
// SQLite for single-node deployments and PostgreSQL for shared ones.
package store

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/PhotonicGluon/Excalibur/pkg/auth/channel"
	"github.com/PhotonicGluon/Excalibur/pkg/srp"
)

// DatabaseType defines the supported database backends.
type DatabaseType string

const (
	DatabaseTypeSQLite   DatabaseType = "sqlite"
	DatabaseTypePostgres DatabaseType = "postgres"
)

var (
	ErrUserNotFound  = errors.New("store: user not found")
	ErrDuplicateUser = errors.New("store: user already exists")
)

// User is an enrolled account. All key material is opaque to the server:
// the verifier proves the client knows its password and key_enc is the
// vault key sealed under the client-side account unlock key.
type User struct {
	Username    string `gorm:"primaryKey"`
	AukSalt     []byte `gorm:"not null"`
	SRPGroup    int    `gorm:"not null"`
	SRPSalt     []byte `gorm:"not null"`
	SRPVerifier []byte `gorm:"not null"`
	KeyEnc      []byte `gorm:"not null"`
}

// Config selects and configures the database backend.
type Config struct {
	Type DatabaseType `mapstructure:"type" validate:"omitempty,oneof=sqlite postgres" yaml:"type"`

	// SQLitePath is the SQLite database file (sqlite backend only).
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`

	// PostgresDSN is the PostgreSQL connection string (postgres backend only).
	PostgresDSN string `mapstructure:"postgres_dsn" yaml:"postgres_dsn,omitempty"`
}

// Store wraps the GORM connection.
type Store struct {
	db *gorm.DB
}

// New opens the database and migrates the schema.
func New(config Config) (*Store, error) {
	if config.Type == "" {
		config.Type = DatabaseTypeSQLite
	}

	var dialector gorm.Dialector
	switch config.Type {
	case DatabaseTypeSQLite:
		if config.SQLitePath == "" {
			return nil, fmt.Errorf("sqlite path is required")
		}
		if err := os.MkdirAll(filepath.Dir(config.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		// WAL keeps concurrent reads alive while a handshake writes.
		dsn := config.SQLitePath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		dialector = sqlite.Open(dsn)

	case DatabaseTypePostgres:
		if config.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres dsn is required")
		}
		dialector = postgres.Open(config.PostgresDSN)

	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := db.AutoMigrate(&User{}); err != nil {
		return nil, fmt.Errorf("running database migration: %w", err)
	}

	return &Store{db: db}, nil
}

// DB returns the underlying GORM connection, for advanced queries and tests.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// AddUser enrols a new user.
func (s *Store) AddUser(ctx context.Context, user *User) error {
	err := s.db.WithContext(ctx).Create(user).Error
	if err != nil && isUniqueConstraintError(err) {
		return ErrDuplicateUser
	}
	return err
}

// GetUser fetches a user by username.
func (s *Store) GetUser(ctx context.Context, username string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// HasUser reports whether the user exists.
func (s *Store) HasUser(ctx context.Context, username string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&User{}).Where("username = ?", username).Count(&count).Error
	return count > 0, err
}

// ListUsers returns all enrolled users, ordered by username.
func (s *Store) ListUsers(ctx context.Context) ([]*User, error) {
	var users []*User
	err := s.db.WithContext(ctx).Order("username").Find(&users).Error
	return users, err
}

// DeleteUser removes a user.
func (s *Store) DeleteUser(ctx context.Context, username string) error {
	result := s.db.WithContext(ctx).Where("username = ?", username).Delete(&User{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SRPUser adapts the stored record to the handshake's view of a user.
// Unknown usernames yield a nil user, which the handshake reports to the
// client as a nonexistent account.
func (s *Store) SRPUser(username string) (*channel.User, error) {
	user, err := s.GetUser(context.Background(), username)
	if errors.Is(err, ErrUserNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	group, err := srp.GroupForBits(user.SRPGroup)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", username, err)
	}
	return &channel.User{
		Username: user.Username,
		Group:    group,
		Salt:     user.SRPSalt,
		Verifier: new(big.Int).SetBytes(user.SRPVerifier),
	}, nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
