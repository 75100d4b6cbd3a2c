package field

import (
	"fmt"
	"strings"
)

// Type 表示可编辑字段的值类型，是一个封闭枚举。
type Type string

const (
	Text     Type = "text"
	Textarea Type = "textarea"
	RichText Type = "richText"
	Image    Type = "image"
	Date     Type = "date"
	Time     Type = "time"
	Color    Type = "color"
	URL      Type = "url"
	Phone    Type = "phone"
	Email    Type = "email"
)

// Types 返回全部字段类型，顺序固定。
func Types() []Type {
	return []Type{Text, Textarea, RichText, Image, Date, Time, Color, URL, Phone, Email}
}

// Valid 判断类型是否属于已知枚举。
func (t Type) Valid() bool {
	switch t {
	case Text, Textarea, RichText, Image, Date, Time, Color, URL, Phone, Email:
		return true
	}
	return false
}

// SingleLine 单行类型允许 Enter 或失焦直接提交。
func (t Type) SingleLine() bool {
	switch t {
	case Text, URL, Phone, Email, Date, Time:
		return true
	}
	return false
}

// Multiline 多行与富文本类型必须显式确认，避免误触丢失输入。
func (t Type) Multiline() bool {
	return t == Textarea || t == RichText
}

// Atomic 图片与颜色属于“选择即提交”的类型。
func (t Type) Atomic() bool {
	return t == Image || t == Color
}

// ValidateFunc 是纯函数校验器：返回 nil 表示合法，否则错误文本直接展示给用户。
type ValidateFunc func(value string) error

// EditableField 是画布与表单共享的最小字段契约。
// Value 始终是字符串：日期为 2006-01-02，时间为 15:04，颜色为 #rrggbb。
type EditableField struct {
	ID          string       `json:"id"`
	Type        Type         `json:"type"`
	Value       string       `json:"value"`
	Required    bool         `json:"required,omitempty"`
	MaxLength   int          `json:"maxLength,omitempty"`
	Label       string       `json:"label,omitempty"`
	Placeholder string       `json:"placeholder,omitempty"`
	Disabled    bool         `json:"disabled,omitempty"`
	Validate    ValidateFunc `json:"-"`
}

// New 构造一个字段，便于工厂函数书写。
func New(id string, typ Type, value string) EditableField {
	return EditableField{ID: id, Type: typ, Value: value}
}

// IsEmpty reports whether the committed value is blank.
func (f EditableField) IsEmpty() bool {
	return strings.TrimSpace(f.Value) == ""
}

// Error 表示字段级校验失败，只阻断该字段的提交。
type Error struct {
	FieldID string
	Message string
}

func (e *Error) Error() string {
	if e.FieldID == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.FieldID, e.Message)
}
