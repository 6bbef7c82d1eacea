package pkg

import (
	cryptoRand "crypto/rand"
	"math/big"
	"strings"
)

// NameAlphabet 生成 blob 名用的字符集：大写字母 + 数字
const NameAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandName 生成长度为 n 的随机串，字符取自 NameAlphabet
func RandName(n int) (string, error) {
	return randFrom(NameAlphabet, n)
}

func randFrom(alphabet string, n int) (string, error) {
	var b strings.Builder
	b.Grow(n)
	max := big.NewInt(int64(len(alphabet)))
	for i := 0; i < n; i++ {
		x, err := cryptoRand.Int(cryptoRand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(alphabet[x.Int64()])
	}
	return b.String(), nil
}
