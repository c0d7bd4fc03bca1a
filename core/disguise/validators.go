package disguise

import (
	"unicode"
	"unicode/utf8"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-disguise/core"
)

var (
	aliasNameMaxLen = 100
	aliasNameTag    = "aliasname"
	aliasNameText   = "an alias must contain 1 to 100 printable characters"

	unknownSettingText = "unknown setting"
)

// InitValidators registers the disguise validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(aliasNameTag, aliasNameValidation)
	core.RegisterCustomTranslation(validate, translator, aliasNameTag, aliasNameText)
}

// aliasNameValidation only allows non-blank, printable names of at most aliasNameMaxLen runes.
func aliasNameValidation(fl validator.FieldLevel) bool {
	return isValidAliasName(fl.Field().String())
}

func isValidAliasName(name string) bool {
	n := utf8.RuneCountInString(name)
	if n == 0 || n > aliasNameMaxLen {
		return false
	}
	blank := true
	for _, r := range name {
		if !unicode.IsPrint(r) {
			return false
		}
		if !unicode.IsSpace(r) {
			blank = false
		}
	}
	return !blank
}

// checkSettingKeys reports every key of cfg that is not in allowed.
func checkSettingKeys(cfg Config, allowed ...string) []core.FieldError {
	var flds []core.FieldError
	for _, key := range cfg.Keys() {
		known := false
		for _, a := range allowed {
			if key == a {
				known = true
				break
			}
		}
		if !known {
			flds = append(flds, core.FieldError{Field: key, Error: unknownSettingText})
		}
	}
	return flds
}
