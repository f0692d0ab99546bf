package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"

	"gopkg.in/yaml.v3"

	"installment-engine/internal/domain/model"
)

//go:embed locales
var LocalesFS embed.FS

// Translator renders message keys from a flat YAML catalogue.
type Translator struct {
	translations map[string]string
}

// NewTranslator loads locales/<langCode>.yaml from fsys.
func NewTranslator(fsys fs.FS, langCode string) (*Translator, error) {
	filePath := path.Join("locales", langCode+".yaml")
	data, err := fs.ReadFile(fsys, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read translation file %s: %w", filePath, err)
	}
	return newTranslatorFromBytes(data)
}

func newTranslatorFromBytes(data []byte) (*Translator, error) {
	var translations map[string]string
	if err := yaml.Unmarshal(data, &translations); err != nil {
		return nil, fmt.Errorf("failed to parse translation file: %w", err)
	}
	return &Translator{translations: translations}, nil
}

// T returns the formatted message for key, or key itself when the catalogue lacks it.
func (t *Translator) T(key string, args ...interface{}) string {
	format, ok := t.translations[key]
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(format, args...)
	}
	return format
}

func (t *Translator) Has(key string) bool {
	_, ok := t.translations[key]
	return ok
}

// Notification renders n through the "notify.<kind>" template. Templates index their
// arguments: %[1]d amount, %[2]s account, %[3]s order, %[4]s free text.
func (t *Translator) Notification(n model.Notification) string {
	key := "notify." + string(n.Kind)
	if t == nil || !t.Has(key) {
		return n.String()
	}
	return t.T(key, n.Amount, n.AccountID, n.OrderID, n.String())
}
