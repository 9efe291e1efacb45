package validation

import (
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// Validation rule patterns
var (
	// Handle pattern: lowercase letters and digits
	HandlePattern = `^[a-z0-9]+$`

	HandleMinLength = 3
	HandleMaxLength = 20

	// Display name min/max length, in characters
	NameMinLength = 5
	NameMaxLength = 30
)

// CompiledPatterns caches compiled regex patterns
var CompiledPatterns = struct {
	Handle *regexp.Regexp
}{
	Handle: regexp.MustCompile(HandlePattern),
}

// StringValidation checks a string against length and pattern rules. Lengths count characters,
// not bytes.
type StringValidation struct {
	Value    string
	MinLen   int
	MaxLen   int
	Required bool
	Pattern  *regexp.Regexp
}

// NewStringValidation creates a new string validation
func NewStringValidation(value string) *StringValidation {
	return &StringValidation{
		Value:    value,
		Required: true,
	}
}

// WithMinLength sets minimum length
func (v *StringValidation) WithMinLength(min int) *StringValidation {
	v.MinLen = min
	return v
}

// WithMaxLength sets maximum length
func (v *StringValidation) WithMaxLength(max int) *StringValidation {
	v.MaxLen = max
	return v
}

// WithPattern sets regex pattern
func (v *StringValidation) WithPattern(pattern *regexp.Regexp) *StringValidation {
	v.Pattern = pattern
	return v
}

// WithRequired sets if field is required
func (v *StringValidation) WithRequired(required bool) *StringValidation {
	v.Required = required
	return v
}

// Validate performs validation
func (v *StringValidation) Validate() bool {
	if v.Value == "" {
		return !v.Required
	}

	n := utf8.RuneCountInString(v.Value)
	if v.MinLen > 0 && n < v.MinLen {
		return false
	}
	if v.MaxLen > 0 && n > v.MaxLen {
		return false
	}

	if v.Pattern != nil && !v.Pattern.MatchString(v.Value) {
		return false
	}
	return true
}

// NormalizeHandle lowercases and trims a user handle
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimSpace(handle))
}

// ValidHandle reports whether the normalized handle is 3 to 20 lowercase letters or digits
func ValidHandle(handle string) bool {
	return NewStringValidation(NormalizeHandle(handle)).
		WithMinLength(HandleMinLength).
		WithMaxLength(HandleMaxLength).
		WithPattern(CompiledPatterns.Handle).
		Validate()
}

// ValidDisplayName reports whether the trimmed name is 5 to 30 characters
func ValidDisplayName(name string) bool {
	return NewStringValidation(strings.TrimSpace(name)).
		WithMinLength(NameMinLength).
		WithMaxLength(NameMaxLength).
		Validate()
}

var registerOnce sync.Once

// RegisterBindingRules adds the "handle" and "notblank" tags to gin's validator
func RegisterBindingRules() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("handle", func(fl validator.FieldLevel) bool {
			return ValidHandle(fl.Field().String())
		})
		_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
	})
}
