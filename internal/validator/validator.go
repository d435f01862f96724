package validator

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/id"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	id_translations "github.com/go-playground/validator/v10/translations/id"
	"golang.org/x/text/language"
)

var (
	// uni holds the English and Indonesian translators for validation errors.
	uni       *ut.UniversalTranslator
	setupOnce sync.Once
)

// Setup registers the validator with English and Indonesian translations on
// Gin's binding engine. Call once during application startup.
func Setup() {
	setupOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*govalidator.Validate); ok {
			register(v)
		}
	})
}

func register(v *govalidator.Validate) {
	// Use JSON tag name for field names in error messages.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("notblank", notBlank)

	enLocale := en.New()
	uni = ut.New(enLocale, enLocale, id.New())

	enTrans, _ := uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, enTrans)
	registerNotBlank(v, enTrans, "{0} must not be blank")

	idTrans, _ := uni.GetTranslator("id")
	_ = id_translations.RegisterDefaultTranslations(v, idTrans)
	registerNotBlank(v, idTrans, "{0} tidak boleh kosong")
}

// notBlank rejects strings made only of whitespace. Non-string kinds fall
// back to the required check.
func notBlank(fl govalidator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() == reflect.String {
		return strings.TrimSpace(field.String()) != ""
	}
	return !field.IsZero()
}

func registerNotBlank(v *govalidator.Validate, trans ut.Translator, text string) {
	_ = v.RegisterTranslation("notblank", trans,
		func(ut ut.Translator) error {
			return ut.Add("notblank", text, true)
		},
		func(ut ut.Translator, fe govalidator.FieldError) string {
			t, _ := ut.T("notblank", fe.Field())
			return t
		},
	)
}

// Translator picks the best translator for the given language preferences.
// Each entry may be a bare tag or a full Accept-Language header.
func Translator(langs ...string) ut.Translator {
	Setup()
	var tags []string
	for _, l := range langs {
		parsed, _, err := language.ParseAcceptLanguage(l)
		if err != nil {
			continue
		}
		for _, t := range parsed {
			base, _ := t.Base()
			tags = append(tags, base.String())
		}
	}
	trans, _ := uni.FindTranslator(tags...)
	return trans
}

// TranslateErrors takes a binding/validation error and returns a map of
// field name → human-readable error message. If the error is not a
// validation error, it returns a single-key map with "detail".
func TranslateErrors(err error, trans ut.Translator) map[string]string {
	fields := make(map[string]string)

	var ve govalidator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			fields[fe.Field()] = fe.Translate(trans)
		}
		return fields
	}

	// Not a validation error (e.g., JSON syntax error).
	fields["detail"] = err.Error()
	return fields
}

// Bind binds and validates the request body into dst.
// Returns nil on success or a translated field error map on failure.
func Bind(c *gin.Context, dst interface{}) map[string]string {
	if err := c.ShouldBindJSON(dst); err != nil {
		return TranslateErrors(err, Translator(c.Query("lang"), c.GetHeader("Accept-Language")))
	}
	return nil
}
