package model

const (
	SWAP_DIRECTION_BUY  = "buy"
	SWAP_DIRECTION_SELL = "sell"
)

// Swap 从账本交易中提取出的一次兑换记录（内存态，不落库）
// PricePerToken = CounterUSD / TokenAmount，TokenAmount为0的记录在提取阶段已被丢弃
type Swap struct {
	Signature     string  `json:"signature"`
	TimestampMs   int64   `json:"timestamp_ms"`
	TokenMint     string  `json:"token_mint"`
	Direction     string  `json:"direction"` // buy, sell
	CounterUSD    float64 `json:"counter_usd"`
	TokenAmount   float64 `json:"token_amount"`
	PricePerToken float64 `json:"price_per_token"`
}

// Lot 一笔买入批次，后续卖出按FIFO消耗
type Lot struct {
	TimestampMs     int64
	Amount          float64
	UnitCost        float64
	RemainingAmount float64
}

// Sale 一笔卖出
type Sale struct {
	TimestampMs int64
	Amount      float64
	UnitPrice   float64
	Signature   string
}

// Position 单个代币的买卖序列，两侧均按时间升序
type Position struct {
	TokenMint string
	Symbol    string
	Name      string
	Buys      []Lot
	Sells     []Sale
}
