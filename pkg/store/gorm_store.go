package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Akshay1705/caption.ai/pkg/domain"
)

const migrateLockID int64 = 51830417

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&PostModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// lockUser serializes writers for one user until the transaction ends.
func lockUser(tx *gorm.DB, userID string) error {
	return tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", userID).Error
}

// Append inserts one post.
func (s *GormStore) Append(ctx context.Context, userID string, post domain.Post) (domain.Post, error) {
	var stored domain.Post
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		stored, err = s.insert(tx, userID, post)
		return err
	})
	return stored, err
}

// Trim deletes the oldest posts beyond keep.
func (s *GormStore) Trim(ctx context.Context, userID string, keep int) ([]domain.Post, error) {
	var removed []domain.Post
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockUser(tx, userID); err != nil {
			return fmt.Errorf("lock user history: %w", err)
		}
		var err error
		removed, err = trimTx(tx, userID, keep)
		return err
	})
	return removed, err
}

// AppendAndTrim inserts the post and trims in a single transaction holding
// a per-user advisory lock, so concurrent generations cannot both skip the trim.
func (s *GormStore) AppendAndTrim(ctx context.Context, userID string, post domain.Post, keep int) (domain.Post, []domain.Post, error) {
	var (
		stored  domain.Post
		removed []domain.Post
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockUser(tx, userID); err != nil {
			return fmt.Errorf("lock user history: %w", err)
		}
		var err error
		if stored, err = s.insert(tx, userID, post); err != nil {
			return err
		}
		removed, err = trimTx(tx, userID, keep)
		return err
	})
	if err != nil {
		return domain.Post{}, nil, err
	}
	return stored, removed, nil
}

func (s *GormStore) insert(tx *gorm.DB, userID string, post domain.Post) (domain.Post, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Post{}, ErrInvalidPost
	}
	post.ID = 0
	post.UserID = userID
	post.CreatedAt = s.timestamp()
	model, err := postToModel(post)
	if err != nil {
		return domain.Post{}, fmt.Errorf("encode post: %w", err)
	}
	if err := tx.Create(&model).Error; err != nil {
		return domain.Post{}, fmt.Errorf("insert post: %w", err)
	}
	return postFromModel(model), nil
}

// timestamp matches Postgres timestamptz precision so a returned post
// equals the same row read back later.
func (s *GormStore) timestamp() time.Time {
	return s.now().Truncate(time.Microsecond)
}

func trimTx(tx *gorm.DB, userID string, keep int) ([]domain.Post, error) {
	var models []PostModel
	if err := tx.Where("user_id = ?", userID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("load posts: %w", err)
	}
	posts := make([]domain.Post, 0, len(models))
	for _, m := range models {
		posts = append(posts, postFromModel(m))
	}
	excess := oldestBeyond(posts, keep)
	if len(excess) == 0 {
		return nil, nil
	}
	ids := make([]uint64, 0, len(excess))
	for _, p := range excess {
		ids = append(ids, p.ID)
	}
	if err := tx.Where("user_id = ? AND id IN ?", userID, ids).Delete(&PostModel{}).Error; err != nil {
		return nil, fmt.Errorf("trim posts: %w", err)
	}
	return excess, nil
}

// List returns the user's posts, most recent first.
func (s *GormStore) List(ctx context.Context, userID string) ([]domain.Post, error) {
	var models []PostModel
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Post, 0, len(models))
	for _, m := range models {
		res = append(res, postFromModel(m))
	}
	return res, nil
}

// Delete removes one post owned by userID.
func (s *GormStore) Delete(ctx context.Context, userID string, id uint64) (domain.Post, bool, error) {
	var (
		removed domain.Post
		found   bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model PostModel
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		res := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&PostModel{})
		if res.Error != nil {
			return res.Error
		}
		found = res.RowsAffected > 0
		removed = postFromModel(model)
		return nil
	})
	if err != nil {
		return domain.Post{}, false, err
	}
	if !found {
		return domain.Post{}, false, nil
	}
	return removed, true, nil
}
