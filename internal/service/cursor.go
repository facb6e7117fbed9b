package service

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrBadCursor = errors.New("malformed cursor")

// Cursor 键集分页游标：(score, post_id) 降序的断点。
// 不用数字偏移：并发插入下 offset 会跳项或重复。
type Cursor struct {
	Score  int64
	PostID string
}

func EncodeCursor(score int64, postID string) string {
	raw := fmt.Sprintf("%d:%s", score, postID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func DecodeCursor(s string) (Cursor, error) {
	if s == "" {
		return Cursor{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, ErrBadCursor
	}
	parts := strings.SplitN(string(raw), ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return Cursor{}, ErrBadCursor
	}
	score, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Cursor{}, ErrBadCursor
	}
	return Cursor{Score: score, PostID: parts[1]}, nil
}
