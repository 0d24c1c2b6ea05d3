package routing

import (
	"strings"
	"time"

	"github.com/louisbranch/supportdesk/internal/services/support/presence"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	// OfflineReplyName is the sender label of the automatic reply.
	OfflineReplyName = "Admin"
	// offlineReplyText is the English reply and its translation key.
	offlineReplyText = "Sorry. I am not online right now"
)

var replyLocales = []language.Tag{
	language.English,
	language.Vietnamese,
}

var replyMatcher = language.NewMatcher(replyLocales)

func init() {
	_ = message.SetString(language.Vietnamese, offlineReplyText, "Xin lỗi. Hiện tại tôi không trực tuyến")
}

// MatchLocale resolves the first usable preference to a supported reply
// locale. Each preference may be a BCP 47 tag or an Accept-Language value.
// English is the fallback.
func MatchLocale(preferences ...string) language.Tag {
	for _, preference := range preferences {
		preference = strings.TrimSpace(preference)
		if preference == "" {
			continue
		}
		tags, _, err := language.ParseAcceptLanguage(preference)
		if err != nil || len(tags) == 0 {
			continue
		}
		_, index, confidence := replyMatcher.Match(tags...)
		if confidence == language.No {
			continue
		}
		return replyLocales[index]
	}
	return language.English
}

// OfflineReplyBody returns the automatic reply text for locale.
func OfflineReplyBody(locale language.Tag) string {
	return message.NewPrinter(locale).Sprintf(offlineReplyText)
}

func offlineReply(userID string, locale language.Tag, now time.Time) presence.Message {
	return presence.Message{
		UserID:  userID,
		Name:    OfflineReplyName,
		Body:    OfflineReplyBody(locale),
		IsAdmin: true,
		SentAt:  now,
	}
}
