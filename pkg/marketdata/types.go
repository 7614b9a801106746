package marketdata

// TokenMarketData 单个代币的行情快照
// 无法解析的代币返回零值条目，下游用卖出价自行兜底
type TokenMarketData struct {
	Mint        string  `json:"mint"`
	Symbol      string  `json:"symbol"`
	Name        string  `json:"name"`
	PriceUSD    float64 `json:"price_usd"`
	MarketCap   float64 `json:"market_cap"`
	ATHPriceUSD float64 `json:"ath_price_usd"`
}

type batchPriceRequest struct {
	Mints []string `json:"mints"`
}

type batchPriceResponse struct {
	Data map[string]tokenEntry `json:"data"`
}

type tokenEntry struct {
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	MarketCap float64 `json:"marketCap"`
	ATHPrice  float64 `json:"athPrice"`
}
