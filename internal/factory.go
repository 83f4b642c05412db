package internal

import (
	"fmt"

	"github.com/vadiminshakov/gainboard/config"
	"github.com/vadiminshakov/gainboard/internal/clients"
	"github.com/vadiminshakov/gainboard/internal/services/pricer"
)

// newCryptoUpstream is the single point of dispatch to the configured crypto venue.
func newCryptoUpstream(cfg config.CryptoConfig) (pricer.CryptoUpstream, error) {
	switch cfg.Platform {
	case config.CryptoBinance:
		return pricer.NewBinanceUpstream(clients.NewBinanceClient(cfg.APIKey, cfg.APISecret, cfg.BaseURL), cfg.Quote), nil
	case config.CryptoBybit:
		return pricer.NewBybitUpstream(clients.NewBybitClient(cfg.APIKey, cfg.APISecret, cfg.BaseURL), cfg.Quote), nil
	case config.CryptoHyperliquid:
		client, err := clients.NewHyperliquidClient(cfg.PrivateKey, cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		return pricer.NewHyperliquidUpstream(client.Info()), nil
	default:
		return nil, fmt.Errorf("unsupported crypto platform: %s", cfg.Platform)
	}
}

func newEquityUpstream(cfg config.EquityConfig) (pricer.EquityUpstream, error) {
	switch cfg.Platform {
	case config.EquityAlpaca:
		return pricer.NewAlpacaUpstream(clients.NewAlpacaClient(cfg.APIKey, cfg.APISecret, cfg.BaseURL)), nil
	default:
		return nil, fmt.Errorf("unsupported equity platform: %s", cfg.Platform)
	}
}
