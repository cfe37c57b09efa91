package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"path"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var locales embed.FS

// DefaultLanguage wird verwendet, wenn eine Sprache oder ein Text fehlt
const DefaultLanguage = "en"

// Translator liefert die festen Texte der Benachrichtigungen in einer Sprache
type Translator struct {
	bundle    *i18n.Bundle
	localizer *i18n.Localizer
	lang      string
}

// NewTranslator lädt die eingebetteten Übersetzungen für lang
func NewTranslator(lang string) (*Translator, error) {
	bundle := i18n.NewBundle(language.MustParse(DefaultLanguage))
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	files, err := locales.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("failed to read locales: %w", err)
	}
	for _, file := range files {
		p := path.Join("locales", file.Name())
		data, err := locales.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		if _, err := bundle.ParseMessageFileBytes(data, p); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", p, err)
		}
	}

	if lang == "" {
		lang = DefaultLanguage
	}
	if !supported(bundle, lang) {
		log.Warnf("Language %s not available, using %s", lang, DefaultLanguage)
	}

	return &Translator{
		bundle:    bundle,
		localizer: i18n.NewLocalizer(bundle, lang, DefaultLanguage),
		lang:      lang,
	}, nil
}

func supported(bundle *i18n.Bundle, lang string) bool {
	tag, err := language.Parse(lang)
	if err != nil {
		return false
	}
	base, _ := tag.Base()
	for _, t := range bundle.LanguageTags() {
		if b, _ := t.Base(); b == base {
			return true
		}
	}
	return false
}

// T übersetzt eine Nachricht. Fehlt sie, wird die ID zurückgegeben.
func (t *Translator) T(id string, data map[string]interface{}) string {
	msg, err := t.localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    id,
		TemplateData: data,
	})
	if err != nil {
		log.Debugf("Translation %s missing for %s: %v", id, t.lang, err)
		return id
	}
	return msg
}

// ErrorNotification liefert Betreff und Body der Fehlermail
func (t *Translator) ErrorNotification(hostname string) (string, string) {
	return t.T("error_subject", nil), t.T("error_body", map[string]interface{}{"Host": hostname})
}

// TestNotification liefert Betreff und Body der Testmail
func (t *Translator) TestNotification() (string, string) {
	return t.T("test_subject", nil), t.T("test_body", nil)
}
