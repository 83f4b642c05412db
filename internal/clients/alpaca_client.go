package clients

import (
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
)

// NewAlpacaClient builds a market data client. An empty baseURL keeps the SDK default.
func NewAlpacaClient(apiKey, apiSecret, baseURL string) *marketdata.Client {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if baseURL != "" {
		opts.BaseURL = baseURL
	}
	return marketdata.NewClient(opts)
}
