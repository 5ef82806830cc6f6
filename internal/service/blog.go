package service

import (
	"github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bloglyhq/blogly/internal/db"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateTag   = errors.New("tag already exists")
	ErrDuplicateTitle = errors.New("post title already taken")
	ErrUnknownTag     = errors.New("unknown tag")
)

type Blog struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

func NewBlog(db *gorm.DB, l *zap.SugaredLogger) *Blog {
	return &Blog{
		db:     db,
		logger: l,
	}
}

func (s *Blog) UserList() ([]db.User, error) {
	users := make([]db.User, 0)
	res := s.db.Order("id").Find(&users)
	if res.Error != nil {
		return nil, res.Error
	}
	return users, nil
}

func (s *Blog) UserGet(id uint64) (*db.User, error) {
	user := db.User{}
	res := s.db.Preload("Posts").First(&user, id)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, res.Error
	}
	return &user, nil
}

func (s *Blog) UserCreate(firstName, lastName, imageURL string) (*db.User, error) {
	if imageURL == "" {
		imageURL = db.DefaultImageURL
	}
	model := db.User{
		FirstName: firstName,
		LastName:  lastName,
		ImageURL:  imageURL,
	}
	res := s.db.Create(&model)
	if res.Error != nil {
		return nil, res.Error
	}
	return &model, nil
}

func (s *Blog) UserUpdate(id uint64, firstName, lastName, imageURL string) (*db.User, error) {
	user, err := s.UserGet(id)
	if err != nil {
		return nil, err
	}
	if imageURL == "" {
		imageURL = db.DefaultImageURL
	}
	user.FirstName = firstName
	user.LastName = lastName
	user.ImageURL = imageURL
	res := s.db.Save(user)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "update user")
	}
	return user, nil
}

// UserDelete removes the user, its posts and their tag associations as
// explicit ordered deletes in one transaction: join rows first, then posts,
// then the user.
func (s *Blog) UserDelete(id uint64) error {
	user := db.User{}
	res := s.db.First(&user, id)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return res.Error
	}

	sql, args, err := squirrel.
		Delete("posts_tags").
		Where(squirrel.Expr("post_id IN (SELECT id FROM posts WHERE user_id = ?)", id)).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "build sql")
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if res := tx.Exec(sql, args...); res.Error != nil {
			return errors.Wrap(res.Error, "delete tag associations")
		}
		if res := tx.Where("user_id = ?", id).Delete(&db.Post{}); res.Error != nil {
			return errors.Wrap(res.Error, "delete posts")
		}
		if res := tx.Delete(&db.User{}, id); res.Error != nil {
			return errors.Wrap(res.Error, "delete user")
		}
		return nil
	})
}

func (s *Blog) PostGet(id uint64) (*db.Post, error) {
	post := db.Post{}
	res := s.db.Preload("User").Preload("Tags").First(&post, id)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, res.Error
	}
	return &post, nil
}

func (s *Blog) PostCreate(userID uint64, title, content string, tagNames []string) (*db.Post, error) {
	if _, err := s.UserGet(userID); err != nil {
		return nil, err
	}
	if err := s.checkTitleFree(title, 0); err != nil {
		return nil, err
	}
	tags, err := s.tagsByName(tagNames)
	if err != nil {
		return nil, err
	}

	model := db.Post{
		Title:   title,
		Content: content,
		UserID:  userID,
		Tags:    tags,
	}
	res := s.db.Create(&model)
	if res.Error != nil {
		return nil, res.Error
	}
	return &model, nil
}

func (s *Blog) PostUpdate(id uint64, title, content string) (*db.Post, error) {
	post, err := s.PostGet(id)
	if err != nil {
		return nil, err
	}
	if err := s.checkTitleFree(title, id); err != nil {
		return nil, err
	}
	post.Title = title
	post.Content = content
	res := s.db.Save(post)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "update post")
	}
	return post, nil
}

// PostDelete removes the post and its tag associations, leaving the tags
// themselves in place. Returns the owning user id for the redirect.
func (s *Blog) PostDelete(id uint64) (uint64, error) {
	post := db.Post{}
	res := s.db.First(&post, id)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return 0, ErrNotFound
		}
		return 0, res.Error
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if res := tx.Where("post_id = ?", id).Delete(&db.PostTag{}); res.Error != nil {
			return errors.Wrap(res.Error, "delete tag associations")
		}
		if res := tx.Delete(&db.Post{}, id); res.Error != nil {
			return errors.Wrap(res.Error, "delete post")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return post.UserID, nil
}

func (s *Blog) TagList() ([]db.Tag, error) {
	tags := make([]db.Tag, 0)
	res := s.db.Order("id").Find(&tags)
	if res.Error != nil {
		return nil, res.Error
	}
	return tags, nil
}

func (s *Blog) TagCreate(name string) (*db.Tag, error) {
	existing := db.Tag{}
	res := s.db.Where("name = ?", name).First(&existing)
	if res.Error == nil {
		return nil, ErrDuplicateTag
	}
	if !errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, res.Error
	}

	model := db.Tag{
		Name: name,
	}
	res = s.db.Create(&model)
	if res.Error != nil {
		return nil, res.Error
	}
	return &model, nil
}

// TagsForPost lists the tags attached to a post through the join table.
func (s *Blog) TagsForPost(postID uint64) ([]db.Tag, error) {
	sql, args, err := squirrel.
		Select("t.id", "t.name", "t.created_at", "t.updated_at").From("tags t").
		Join("posts_tags pt ON t.id = pt.tag_id").
		OrderBy("t.id").
		Where(squirrel.Eq{"pt.post_id": postID}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build sql")
	}

	tags := make([]db.Tag, 0)
	res := s.db.Raw(sql, args...).Scan(&tags)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "scan")
	}
	return tags, nil
}

func (s *Blog) tagsByName(names []string) ([]db.Tag, error) {
	tags := make([]db.Tag, 0, len(names))
	for _, name := range names {
		tag := db.Tag{}
		res := s.db.Where("name = ?", name).First(&tag)
		if res.Error != nil {
			if errors.Is(res.Error, gorm.ErrRecordNotFound) {
				return nil, errors.Wrapf(ErrUnknownTag, "tag %q", name)
			}
			return nil, res.Error
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

func (s *Blog) checkTitleFree(title string, selfID uint64) error {
	existing := db.Post{}
	res := s.db.Where("title = ?", title).First(&existing)
	if res.Error == nil {
		if existing.ID == selfID {
			return nil
		}
		return ErrDuplicateTitle
	}
	if !errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return res.Error
	}
	return nil
}
