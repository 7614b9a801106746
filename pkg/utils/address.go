package utils

import (
	"github.com/gagliardetto/solana-go"
)

// IsValidSolanaAddress 校验字符串是否为合法的Solana账户地址
// 纯函数：base58解码成功且为32字节公钥才算合法
func IsValidSolanaAddress(address string) bool {
	if len(address) < 32 || len(address) > 44 {
		return false
	}
	pk, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return false
	}
	return !pk.IsZero()
}
