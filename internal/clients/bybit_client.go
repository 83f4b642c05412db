package clients

import (
	"github.com/hirokisan/bybit/v2"
)

// NewBybitClient builds a V5 client; auth is attached only when keys are set.
func NewBybitClient(apiKey, apiSecret, baseURL string) *bybit.Client {
	var opts []bybit.ClientOption
	if baseURL != "" {
		opts = append(opts, bybit.WithBaseURL(baseURL))
	}

	client := bybit.NewClient(opts...)
	if apiKey != "" && apiSecret != "" {
		client = client.WithAuth(apiKey, apiSecret)
	}

	return client
}
