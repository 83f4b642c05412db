// Package setup runs the interactive config wizard.
package setup

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/gainboard/config"
	"github.com/vadiminshakov/gainboard/internal/cache"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// Answers collected by the wizard.
type Answers struct {
	Addr           string
	CryptoPlatform string
	CryptoQuote    string
	CacheBackend   string
	RedisAddr      string
	MaxUpstream    string
	FetchTimeout   string
	Holdings       string
	Snapshots      bool
}

func defaults() Answers {
	return Answers{
		Addr:           ":8080",
		CryptoPlatform: config.CryptoBinance,
		CryptoQuote:    "USDT",
		CacheBackend:   cache.BackendLocal,
		RedisAddr:      "localhost:6379",
		MaxUpstream:    "8",
		FetchTimeout:   "30s",
		Holdings:       config.HoldingsMemory,
		Snapshots:      true,
	}
}

func step(title string) {
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("GAINBOARD CONFIG WIZARD"))
	fmt.Println(stepStyle.Render(title))
}

// RunTUI launches the terminal configuration wizard and writes the result to path.
func RunTUI(path string) error {
	a := defaults()
	var confirm bool

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("GAINBOARD CONFIG WIZARD"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Price sources, cache and storage in a few steps.\n"))

	fmt.Println(stepStyle.Render("STEP 1: CRYPTO PRICES"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Crypto price source").
				Options(
					huh.NewOption("Binance", config.CryptoBinance),
					huh.NewOption("Bybit", config.CryptoBybit),
					huh.NewOption("Hyperliquid", config.CryptoHyperliquid),
				).
				Value(&a.CryptoPlatform),
			huh.NewInput().
				Title("Quote asset").
				Description("Ignored by Hyperliquid (USD mids)").
				Value(&a.CryptoQuote),
		),
	).Run()
	if err != nil {
		return err
	}

	step("STEP 2: CACHE")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Cache backend").
				Options(
					huh.NewOption("Process-local", cache.BackendLocal),
					huh.NewOption("Redis with local fallback", cache.BackendRedis),
				).
				Value(&a.CacheBackend),
		),
	).Run()
	if err != nil {
		return err
	}
	if a.CacheBackend == cache.BackendRedis {
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Redis address").
					Description("host:port, password goes to REDIS_PASSWORD").
					Value(&a.RedisAddr).
					Validate(validateHostPort),
			),
		).Run()
		if err != nil {
			return err
		}
	}

	step("STEP 3: UPSTREAM LIMITS")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Max concurrent upstream calls").
				Value(&a.MaxUpstream).
				Validate(validatePositiveInt),
			huh.NewInput().
				Title("Shared fetch timeout").
				Description("Duration string (e.g. 10s, 30s)").
				Value(&a.FetchTimeout).
				Validate(func(s string) error {
					_, err := time.ParseDuration(s)
					return err
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	step("STEP 4: STORAGE")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Holdings store").
				Options(
					huh.NewOption("In-memory (seeded from config)", config.HoldingsMemory),
					huh.NewOption("Postgres (POSTGRES_DSN)", config.HoldingsPostgres),
				).
				Value(&a.Holdings),
			huh.NewConfirm().
				Title("Record daily portfolio snapshots?").
				Value(&a.Snapshots),
			huh.NewInput().
				Title("HTTP listen address").
				Value(&a.Addr),
		),
	).Run()
	if err != nil {
		return err
	}

	step("FINAL CONFIRMATION")
	summary := fmt.Sprintf(
		"Crypto: %s (%s)\nCache: %s\nUpstream: %s calls, %s timeout\nHoldings: %s\nListen: %s\n",
		a.CryptoPlatform, a.CryptoQuote, a.CacheBackend, a.MaxUpstream, a.FetchTimeout, a.Holdings, a.Addr,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save and start").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		return errors.New("setup cancelled by user")
	}

	data, err := Render(a)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to save config file")
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s\nStarting gainboard...", path)))
	time.Sleep(1500 * time.Millisecond)
	return nil
}

// Render encodes the answers as a config file.
func Render(a Answers) ([]byte, error) {
	maxUpstream, err := strconv.ParseInt(a.MaxUpstream, 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "max upstream")
	}

	tmp := config.ConfigTmp{
		Server: config.ServerTmp{Addr: a.Addr},
		Log:    config.LogTmp{Level: "info"},
		Cache: config.CacheTmp{
			Backend:         a.CacheBackend,
			JanitorInterval: "1m",
		},
		Concurrency: config.ConcurrencyTmp{
			MaxUpstream:  maxUpstream,
			FetchTimeout: a.FetchTimeout,
		},
		Equity: config.EquityTmp{Platform: config.EquityAlpaca},
		Crypto: config.CryptoTmp{
			Platform: a.CryptoPlatform,
			Quote:    strings.ToUpper(a.CryptoQuote),
		},
		Holdings:  config.HoldingsTmp{Backend: a.Holdings},
		Snapshots: config.SnapshotsTmp{Enabled: a.Snapshots},
	}
	if a.CacheBackend == cache.BackendRedis {
		tmp.Cache.RedisAddr = a.RedisAddr
	}

	data, err := yaml.Marshal(tmp)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate yaml")
	}
	return data, nil
}

func validatePositiveInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return fmt.Errorf("must be a positive integer")
	}
	return nil
}

func validateHostPort(s string) error {
	_, port, ok := strings.Cut(s, ":")
	if !ok || port == "" {
		return fmt.Errorf("invalid format: must be host:port")
	}
	return validatePositiveInt(port)
}
