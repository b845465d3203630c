package translation

import (
	"strings"

	"github.com/leonelquinteros/gotext"
)

// DefaultDomain is the .po file name loaded from each locale directory.
const DefaultDomain = "default"

// Configure loads the catalog of lang from dir. Untranslated ids are returned as is.
func Configure(dir, lang string) {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, ".@"); i >= 0 {
		lang = lang[:i]
	}
	gotext.Configure(dir, lang, DefaultDomain)
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
