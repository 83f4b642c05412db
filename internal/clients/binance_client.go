package clients

import (
	"github.com/adshao/go-binance/v2"
)

// NewBinanceClient builds a spot client. Empty keys are fine for public market data.
func NewBinanceClient(apiKey, apiSecret, baseURL string) *binance.Client {
	client := binance.NewClient(apiKey, apiSecret)
	if baseURL != "" {
		client.BaseURL = baseURL
	}
	return client
}
