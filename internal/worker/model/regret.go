package model

// RegretEvent 单笔卖出（或其被匹配部分）对应的后悔事件
// RegretUSD >= 0；MatchedAmount <= 卖出数量，买入批次不足时只记可匹配部分
type RegretEvent struct {
	ID                string  `json:"id"`
	TokenMint         string  `json:"token_mint"`
	Symbol            string  `json:"symbol"`
	BuyUnitPrice      float64 `json:"buy_unit_price"` // 消耗批次的加权均价
	SellUnitPrice     float64 `json:"sell_unit_price"`
	MatchedAmount     float64 `json:"matched_amount"`
	BuyTimestampMs    int64   `json:"buy_timestamp_ms"` // 最早被消耗批次的时间
	SellTimestampMs   int64   `json:"sell_timestamp_ms"`
	RealizedDeltaUSD  float64 `json:"realized_delta_usd"`
	RegretUSD         float64 `json:"regret_usd"`
	RegretPercent     float64 `json:"regret_percent"`
	ReferencePriceUSD float64 `json:"reference_price_usd"`
	SellSignature     string  `json:"sell_signature"`
}

// TokenRegret 按代币聚合后的后悔总量，用于top-N排序
type TokenRegret struct {
	TokenMint      string  `json:"token_mint"`
	Symbol         string  `json:"symbol"`
	TotalRegretUSD float64 `json:"total_regret_usd"`
	EventCount     int     `json:"event_count"`
}

// AnalysisReport 一次完整分析的产出，作为JSON整体写入Job与结果缓存
type AnalysisReport struct {
	WalletAddress  string        `json:"wallet_address"`
	TotalRegretUSD float64       `json:"total_regret_usd"`
	TotalEvents    int           `json:"total_events"`
	DistinctTokens int           `json:"distinct_tokens"`
	WinRate        float64       `json:"win_rate"`
	AvgHoldDays    int           `json:"avg_hold_days"`
	TopTokens      []TokenRegret `json:"top_tokens"`
	Tags           []string      `json:"tags"`
	DateFromMs     int64         `json:"date_from_ms"`
	DateToMs       int64         `json:"date_to_ms"`
	ComputedAt     int64         `json:"computed_at"` // 毫秒时间戳
	Events         []RegretEvent `json:"events"`
}
