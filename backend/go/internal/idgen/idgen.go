// Package idgen 生成短小的随机不透明字符串 ID。
package idgen

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	MinLength = 12
	MaxLength = 24

	// DefaultLength 是新建任务所使用的 ID 长度。
	DefaultLength = 12
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Generator 生成随机 ID。零值不可用，请使用 New。
type Generator struct {
	length int
}

// New 创建一个生成指定长度 ID 的生成器，长度必须在 [MinLength, MaxLength] 内。
func New(length int) (*Generator, error) {
	if length < MinLength || length > MaxLength {
		return nil, fmt.Errorf("id length %d out of range [%d, %d]", length, MinLength, MaxLength)
	}
	return &Generator{length: length}, nil
}

// MustNew 与 New 相同，但在长度非法时 panic。
func MustNew(length int) *Generator {
	g, err := New(length)
	if err != nil {
		panic(err)
	}
	return g
}

// Next 返回一个新的随机 ID。
func (g *Generator) Next() string {
	return Random(g.length)
}

// NextWithPrefix 返回带前缀的随机 ID，随机部分的长度不变。
func (g *Generator) NextWithPrefix(prefix string) string {
	return prefix + g.Next()
}

// Random 返回长度为 n 的随机字母数字串。
func Random(n int) string {
	buf := make([]byte, n)
	max := big.NewInt(int64(len(alphabet)))
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand 失败意味着系统熵源不可用，无法继续生成安全 ID。
			panic(fmt.Sprintf("idgen: crypto/rand unavailable: %v", err))
		}
		buf[i] = alphabet[idx.Int64()]
	}
	return string(buf)
}
