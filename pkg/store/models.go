package store

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/Akshay1705/caption.ai/pkg/domain"
)

// PostModel is the GORM row for one generated post.
type PostModel struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement"`
	UserID    string         `gorm:"not null;index:idx_posts_user_created,priority:1"`
	Image     string         `gorm:"type:text"`
	ImageKey  string
	Caption   string         `gorm:"type:text;not null"`
	Hashtags  datatypes.JSON `gorm:"type:jsonb;not null"`
	Songs     datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt time.Time      `gorm:"not null;index:idx_posts_user_created,priority:2"`
}

func (PostModel) TableName() string { return "posts" }

func postToModel(p domain.Post) (PostModel, error) {
	hashtags, err := json.Marshal(nonNil(p.Hashtags))
	if err != nil {
		return PostModel{}, err
	}
	songs, err := json.Marshal(nonNil(p.Songs))
	if err != nil {
		return PostModel{}, err
	}
	return PostModel{
		ID:        p.ID,
		UserID:    p.UserID,
		Image:     p.Image,
		ImageKey:  p.ImageKey,
		Caption:   p.Caption,
		Hashtags:  datatypes.JSON(hashtags),
		Songs:     datatypes.JSON(songs),
		CreatedAt: p.CreatedAt,
	}, nil
}

func postFromModel(m PostModel) domain.Post {
	return domain.Post{
		ID:        m.ID,
		UserID:    m.UserID,
		Image:     m.Image,
		ImageKey:  m.ImageKey,
		Caption:   m.Caption,
		Hashtags:  decodeList(m.Hashtags),
		Songs:     decodeList(m.Songs),
		CreatedAt: m.CreatedAt,
	}
}

func decodeList(raw datatypes.JSON) []string {
	out := []string{}
	if len(raw) == 0 {
		return out
	}
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		return []string{}
	}
	return out
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
