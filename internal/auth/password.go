package auth

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	// bcrypt 只取前 72 字节。
	maxPasswordBytes = 72
)

// ErrWeakPassword 表示新密码不满足密码策略。
var ErrWeakPassword = errors.New("weak password")

// hashCost 在测试中可以调低。
var hashCost = bcrypt.DefaultCost

// HashPassword 使用 bcrypt 生成密码哈希。
func HashPassword(password string) (string, error) {
	if len(password) > maxPasswordBytes {
		return "", fmt.Errorf("hash password: %w: longer than %d bytes", ErrWeakPassword, maxPasswordBytes)
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), hashCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(bytes), nil
}

// CheckPasswordHash 校验密码是否匹配哈希。
func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ValidateNewPassword 检查新人修改密码时的策略：长度、字母与数字混合、
// 不包含用户名、不能与当前密码相同。
func ValidateNewPassword(password, current, username string) error {
	trimmed := strings.TrimSpace(password)
	switch {
	case len([]rune(trimmed)) < minPasswordLength:
		return fmt.Errorf("%w: at least %d characters", ErrWeakPassword, minPasswordLength)
	case len(password) > maxPasswordBytes:
		return fmt.Errorf("%w: at most %d bytes", ErrWeakPassword, maxPasswordBytes)
	case trimmed == strings.TrimSpace(current):
		return fmt.Errorf("%w: must differ from current password", ErrWeakPassword)
	}
	if u := strings.ToLower(strings.TrimSpace(username)); u != "" && strings.Contains(strings.ToLower(trimmed), u) {
		return fmt.Errorf("%w: must not contain the username", ErrWeakPassword)
	}

	var letter, digit bool
	for _, r := range trimmed {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return fmt.Errorf("%w: mix letters and digits", ErrWeakPassword)
	}
	return nil
}
