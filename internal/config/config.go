package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
	DBDSN    string `envconfig:"DB_DSN" required:"true"`

	JWTIssuer string        `envconfig:"JWT_ISSUER" required:"true"`
	JWTSecret string        `envconfig:"JWT_SECRET" required:"true"`
	JWTTTL    time.Duration `envconfig:"JWT_TTL" default:"12h"`

	// Shared secret used to verify HMAC signatures on inbound platform
	// webhooks.
	WebhookSecret string `envconfig:"WEBHOOK_SECRET" required:"true"`

	PriceFeedURL     string        `envconfig:"PRICEFEED_URL"`
	PriceFeedTimeout time.Duration `envconfig:"PRICEFEED_TIMEOUT" default:"3s"`

	MaxLeverage int `envconfig:"MAX_LEVERAGE" default:"500"`

	// CommissionRate is the per-close fee as a fraction of notional, e.g.
	// 0.001 for 10 bps.
	CommissionRate string `envconfig:"COMMISSION_RATE" default:"0.001"`
}

func Load() (Config, error) {
	// .env is optional; real deployments use the environment directly.
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return Config{}, fmt.Errorf("load .env: %w", err)
		}
	}

	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}
	if err := validate(c); err != nil {
		return Config{}, err
	}
	return c, nil
}

func validate(c Config) error {
	if c.MaxLeverage < 1 || c.MaxLeverage > 500 {
		return fmt.Errorf("MAX_LEVERAGE must be within 1..500, got %d", c.MaxLeverage)
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive")
	}
	if c.PriceFeedTimeout <= 0 {
		return fmt.Errorf("PRICEFEED_TIMEOUT must be positive")
	}
	rate, err := decimal.NewFromString(c.CommissionRate)
	if err != nil || rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("COMMISSION_RATE must be a decimal in [0, 1), got %q", c.CommissionRate)
	}
	return nil
}

// Commission returns the validated commission rate as a decimal.
func (c Config) Commission() decimal.Decimal {
	rate, _ := decimal.NewFromString(c.CommissionRate)
	return rate
}
