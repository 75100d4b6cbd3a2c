package field

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"wedsite/internal/richtext"
)

const (
	// DateLayout 是日期字段的存储格式。
	DateLayout = "2006-01-02"
	// TimeLayout 是时间字段的存储格式。
	TimeLayout = "15:04"
)

var (
	validate = validator.New()

	phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 ()\-.]{5,19}$`)
)

// Check 按顺序执行必填、长度、类型与自定义校验。
// 返回 *Error；非空可选值才做类型校验。
func (f EditableField) Check(candidate string) error {
	trimmed := strings.TrimSpace(candidate)
	if f.Type == RichText {
		trimmed = strings.TrimSpace(richtext.PlainText(candidate))
	}
	if trimmed == "" {
		if f.Required {
			return f.fail(requiredMessage(f))
		}
		return nil
	}

	if f.MaxLength > 0 && measure(f.Type, candidate) > f.MaxLength {
		return f.fail("Must be at most " + strconv.Itoa(f.MaxLength) + " characters.")
	}

	if msg := checkType(f.Type, strings.TrimSpace(candidate)); msg != "" {
		return f.fail(msg)
	}

	if f.Validate != nil {
		if err := f.Validate(candidate); err != nil {
			return f.fail(err.Error())
		}
	}
	return nil
}

func (f EditableField) fail(msg string) error {
	return &Error{FieldID: f.ID, Message: msg}
}

func requiredMessage(f EditableField) string {
	if f.Label != "" {
		return f.Label + " is required."
	}
	return "This field is required."
}

func measure(t Type, value string) int {
	if t == RichText {
		return utf8.RuneCountInString(richtext.PlainText(value))
	}
	return utf8.RuneCountInString(value)
}

func checkType(t Type, value string) string {
	switch t {
	case Email:
		if validate.Var(value, "email") != nil {
			return "Enter a valid email address."
		}
	case URL:
		if validate.Var(value, "url") != nil {
			return "Enter a valid link, including https://."
		}
	case Color:
		if validate.Var(value, "hexcolor") != nil {
			return "Pick a color in #rrggbb form."
		}
	case Phone:
		if !phonePattern.MatchString(value) {
			return "Enter a valid phone number."
		}
	case Date:
		if _, err := time.Parse(DateLayout, value); err != nil {
			return "Enter a date as YYYY-MM-DD."
		}
	case Time:
		if _, err := time.Parse(TimeLayout, value); err != nil {
			return "Enter a time as HH:MM."
		}
	}
	return ""
}
