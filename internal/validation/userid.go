package validation

import (
	"fmt"
	"regexp"
)

// UserIDPattern определяет допустимый формат идентификатора пользователя
// из claims токена: латинские буквы, цифры, дефис, нижнее подчеркивание.
// Длина: 1-64 символа
var UserIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// MaxUserIDLen максимальная длина user id
const MaxUserIDLen = 64

// ValidateUserID проверяет user_id, пришедший во внешнем токене.
// Identity-провайдер внешний, поэтому формат проверяем на своей стороне
func ValidateUserID(userID string) error {
	if userID == "" {
		return fmt.Errorf("user id cannot be empty")
	}

	if len(userID) > MaxUserIDLen {
		return fmt.Errorf("user id must not exceed %d characters", MaxUserIDLen)
	}

	if !UserIDPattern.MatchString(userID) {
		return fmt.Errorf("user id can only contain letters (a-z, A-Z), numbers (0-9), hyphens (-) and underscores (_)")
	}

	return nil
}
