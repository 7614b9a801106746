package ledger

import (
	"encoding/json"
	"time"
)

// EnhancedTransaction 索引服务返回的已解析交易
// 字段为已识别的联合类型子集，无法识别的来源/类型由上层按白名单丢弃
type EnhancedTransaction struct {
	Signature        string           `json:"signature"`
	Timestamp        int64            `json:"timestamp"` // 秒级时间戳
	Slot             uint64           `json:"slot"`
	Source           string           `json:"source"` // RAYDIUM / JUPITER / ORCA ...
	Type             string           `json:"type"`   // SWAP / TRANSFER / UNKNOWN
	Fee              int64            `json:"fee"`    // lamports
	FeePayer         string           `json:"feePayer"`
	TransactionError json.RawMessage  `json:"transactionError"` // null表示链上成功
	TokenTransfers   []TokenTransfer  `json:"tokenTransfers"`
	NativeTransfers  []NativeTransfer `json:"nativeTransfers"`
}

// Failed 交易是否在链上执行失败
func (t *EnhancedTransaction) Failed() bool {
	return len(t.TransactionError) > 0 && string(t.TransactionError) != "null"
}

type TokenTransfer struct {
	FromUserAccount string  `json:"fromUserAccount"`
	ToUserAccount   string  `json:"toUserAccount"`
	Mint            string  `json:"mint"`
	TokenAmount     float64 `json:"tokenAmount"` // UI单位
	TokenStandard   string  `json:"tokenStandard"`
}

type NativeTransfer struct {
	FromUserAccount string `json:"fromUserAccount"`
	ToUserAccount   string `json:"toUserAccount"`
	Amount          int64  `json:"amount"` // lamports
}

// FetchStatus 单次上游请求的归类结果
type FetchStatus int

const (
	FetchOK FetchStatus = iota
	FetchRateLimited
	FetchFailed
)

// FetchOutcome 上游请求的类型化结果，重试决策由调用方的显式循环完成
type FetchOutcome struct {
	Status     FetchStatus
	RetryAfter time.Duration // 仅RateLimited时有意义
	Err        error
}

func (o FetchOutcome) OK() bool { return o.Status == FetchOK }
