// Package roomcode 生成與驗證房間碼
//
// 房間碼是 6 位 Base36 字串（0-9, A-Z），玩家口頭或手動輸入，
// 所以只使用大寫並且比對時不分大小寫。
//
// 編碼空間：36^6 ≈ 21 億，活躍房間數遠小於此，碰撞時由呼叫方重新生成。
package roomcode

import (
	"crypto/rand"
	"encoding/binary"
	"strings"
)

const (
	base36Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	base        = 36

	// Length 房間碼長度
	Length = 6
)

// space = 36^Length
const space uint64 = base * base * base * base * base * base

var isBase36 [256]bool

func init() {
	for _, c := range base36Chars {
		isBase36[byte(c)] = true
	}
}

// Generator 房間碼生成器
type Generator interface {
	Generate() (string, error)
}

// GeneratorFunc 函數適配器
type GeneratorFunc func() (string, error)

// Generate 實現 Generator
func (f GeneratorFunc) Generate() (string, error) { return f() }

// Random 使用 crypto/rand 的生成器
type Random struct{}

// Generate 生成一個隨機房間碼
func (Random) Generate() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return Encode(binary.BigEndian.Uint64(b[:]) % space), nil
}

// Encode 將數字編碼為固定長度的房間碼（高位補 0）
//
// 超過編碼空間的數字取模。
func Encode(num uint64) string {
	num %= space
	out := make([]byte, Length)
	for i := Length - 1; i >= 0; i-- {
		out[i] = base36Chars[num%base]
		num /= base
	}
	return string(out)
}

// Normalize 去除空白並轉大寫
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Valid 檢查房間碼格式，不分大小寫
func Valid(code string) bool {
	code = Normalize(code)
	if len(code) != Length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !isBase36[code[i]] {
			return false
		}
	}
	return true
}
