package errors

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// vietnameseMessages translates client-facing error text, keyed by English.
var vietnameseMessages = map[string]string{
	"user_id is required":                  "Cần có user_id",
	"user_id does not match token":         "user_id không khớp với token",
	"connection must identify first":       "Kết nối phải định danh trước",
	"admin role required":                  "Cần quyền quản trị",
	"body is required":                     "Cần có nội dung tin nhắn",
	"body must be at most 2000 characters": "Nội dung tối đa 2000 ký tự",
	"internal error":                       "Lỗi nội bộ",
}

func init() {
	for key, translated := range vietnameseMessages {
		_ = message.SetString(language.Vietnamese, key, translated)
	}
}
