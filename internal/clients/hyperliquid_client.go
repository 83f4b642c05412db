package clients

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	hyperliquid "github.com/sonirico/go-hyperliquid"
)

// HyperliquidClient exposes the public Info API used for mids and candles.
type HyperliquidClient struct {
	exchange    *hyperliquid.Exchange
	accountAddr string
}

// NewHyperliquidClient builds the SDK exchange. Only public Info endpoints are
// used, so an empty key is replaced by a throwaway one.
func NewHyperliquidClient(privateKeyHex string, baseURL string) (*HyperliquidClient, error) {
	privateKey, err := hyperliquidKey(privateKeyHex)
	if err != nil {
		return nil, err
	}

	pubECDSA, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("error casting public key to ECDSA")
	}
	accountAddr := crypto.PubkeyToAddress(*pubECDSA).Hex()

	// Info and SpotMeta are fetched lazily by the SDK
	ex := hyperliquid.NewExchange(
		context.Background(),
		privateKey,
		baseURL,
		nil,
		"",
		accountAddr,
		nil,
	)

	return &HyperliquidClient{exchange: ex, accountAddr: accountAddr}, nil
}

func hyperliquidKey(hexKey string) (*ecdsa.PrivateKey, error) {
	if hexKey == "" {
		return crypto.GenerateKey()
	}

	hexKey = strings.TrimPrefix(strings.TrimPrefix(hexKey, "0x"), "0X")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse hyperliquid private key: %w", err)
	}
	return key, nil
}

func (c *HyperliquidClient) Info() *hyperliquid.Info { return c.exchange.Info() }
func (c *HyperliquidClient) AccountAddress() string  { return c.accountAddr }
