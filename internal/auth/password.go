package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt 成本沿用库默认值；上调前需评估登录接口的延迟预算。
const bcryptCost = bcrypt.DefaultCost

// HashPassword 使用 bcrypt 生成密码哈希，明文口令不落库。
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(bytes), nil
}

// CheckPasswordHash 重新计算并比对哈希，校验口令是否匹配。
func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
