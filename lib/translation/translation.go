package translation

import (
	"strings"

	"github.com/leonelquinteros/gotext"
)

const domain = "default"

// Configure loads <dir>/<lang>/LC_MESSAGES/default.po. Without a catalog the English message
// ids are shown as is.
func Configure(dir, lang string) {
	gotext.Configure(dir, strings.ToLower(lang), domain)
}

func GetLanguage() string {
	lang := gotext.GetLanguage()

	if lang == "und" || lang == "" {
		return "en"
	}

	return lang
}

func Translate(msgID string, vars ...interface{}) string {
	return gotext.Get(msgID, vars...)
}
