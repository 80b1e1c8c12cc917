package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

var ErrInvalidPageToken = errors.New("invalid_page_token")

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
}

// Normalize clamps the page size to (0, MaxPageSize].
func (p Pagination) Normalize() Pagination {
	switch {
	case p.PageSize <= 0:
		p.PageSize = DefaultPageSize
	case p.PageSize > MaxPageSize:
		p.PageSize = MaxPageSize
	}
	return p
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token,omitempty"`
	HasMore       bool   `json:"has_more"`
}

// Cursor points at the last row of a page ordered by (created_at desc, id desc).
type Cursor struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
}

func (c Cursor) Time() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, c.CreatedAt)
}

func EncodeCursor(c Cursor) (string, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func DecodeCursor(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidPageToken
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil || c.ID == "" {
		return nil, ErrInvalidPageToken
	}
	if _, err := c.Time(); err != nil {
		return nil, ErrInvalidPageToken
	}
	return &c, nil
}

// BuildCursorPageInfo expects items fetched with limit pageSize+1.
func BuildCursorPageInfo[T any](items []T, pageSize int, tokenOf func(T) string) *PageInfo {
	if len(items) <= pageSize || pageSize <= 0 {
		return &PageInfo{}
	}
	return &PageInfo{
		HasMore:       true,
		NextPageToken: tokenOf(items[pageSize-1]),
	}
}
