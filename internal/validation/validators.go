package validation

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"unicode"

	"github.com/benvon/inbox-gateway/internal/apperr"
	"github.com/benvon/inbox-gateway/internal/services/ai"
	"github.com/go-playground/validator/v10"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	// Report fields by their JSON names so messages match request bodies
	Validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	if err := Validate.RegisterValidation("voice", validateVoice); err != nil {
		panic(fmt.Sprintf("failed to register voice validator: %v", err))
	}
}

// validateVoice accepts the text-to-speech voices, case-insensitively
func validateVoice(fl validator.FieldLevel) bool {
	return slices.Contains(ai.Voices, strings.ToLower(fl.Field().String()))
}

// Struct validates v and converts failures into an apperr validation error.
// Missing required fields are reported together, in field order.
func Struct(v any) error {
	err := Validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation("invalid request: %v", err)
	}

	var missing, invalid []string
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			missing = append(missing, fe.Field())
			continue
		}
		invalid = append(invalid, describe(fe))
	}
	if len(missing) > 0 {
		return apperr.Validation("Missing required fields: %s", strings.Join(missing, ", "))
	}
	return apperr.Validation("%s", strings.Join(invalid, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "voice":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.Join(ai.Voices, ", "))
	case "gte", "lte":
		return fmt.Sprintf("%s must be between %.2f and %.1f", fe.Field(), ai.MinSpeed, ai.MaxSpeed)
	case "base64":
		return fmt.Sprintf("%s must be base64 encoded", fe.Namespace())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)

	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}
