package db

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bloglyhq/blogly/internal/config"
)

// DefaultImageURL is stored for users created without an image URL.
const DefaultImageURL = "https://upload.wikimedia.org/wikipedia/en/thumb/7/7b/Josh_Brolin_as_Thanos.jpeg/220px-Josh_Brolin_as_Thanos.jpeg"

type (
	// GormForkedModel is gorm.Model without DeletedAt: deletes here are
	// hard deletes, soft-delete rows would survive the user/post cascades.
	GormForkedModel struct {
		ID        uint64 `gorm:"primarykey"`
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	User struct {
		GormForkedModel
		FirstName string `gorm:"size:15"`
		LastName  string `gorm:"size:15"`
		ImageURL  string `gorm:"type:text"`
		Posts     []Post
	}

	Post struct {
		GormForkedModel
		Title   string `gorm:"size:100;uniqueIndex;not null"`
		Content string `gorm:"type:text;not null"`
		UserID  uint64 `gorm:"not null"`
		User    User
		Tags    []Tag `gorm:"many2many:posts_tags;"`
	}

	Tag struct {
		GormForkedModel
		Name  string `gorm:"uniqueIndex;not null"`
		Posts []Post `gorm:"many2many:posts_tags;"`
	}

	// PostTag is the posts_tags join row, kept explicit so the cascade
	// deletes can target it directly.
	PostTag struct {
		PostID uint64 `gorm:"primaryKey"`
		TagID  uint64 `gorm:"primaryKey"`
	}
)

func (PostTag) TableName() string { return "posts_tags" }

func NewGormClient(cfg *config.Config) (*gorm.DB, error) {
	newLogger := logger.New(log.New(os.Stdout, "\r\n", log.LstdFlags), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Info,
		Colorful:                  true,
		IgnoreRecordNotFoundError: false,
	})

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect database")
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate creates or updates the four tables. Shared with the sqlite-backed
// test setup.
func Migrate(db *gorm.DB) error {
	if err := db.SetupJoinTable(&Post{}, "Tags", &PostTag{}); err != nil {
		return errors.Wrap(err, "setup join table")
	}
	if err := db.SetupJoinTable(&Tag{}, "Posts", &PostTag{}); err != nil {
		return errors.Wrap(err, "setup join table")
	}
	if err := db.AutoMigrate(&User{}); err != nil {
		return errors.Wrap(err, "migrate user")
	}
	if err := db.AutoMigrate(&Post{}); err != nil {
		return errors.Wrap(err, "migrate post")
	}
	if err := db.AutoMigrate(&Tag{}); err != nil {
		return errors.Wrap(err, "migrate tag")
	}
	if err := db.AutoMigrate(&PostTag{}); err != nil {
		return errors.Wrap(err, "migrate posts_tags")
	}
	return nil
}
