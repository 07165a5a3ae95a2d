package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func baseEnv() map[string]string {
	return map[string]string{
		"COMMERCE_ENDPOINT":     "https://shop.example.com/graphql",
		"RISK_HISTORY_ENDPOINT": "https://risk.example.com/history",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(WithEnvMap(baseEnv()), WithoutSystemEnv(), WithEnvFile(filepath.Join(t.TempDir(), "absent.env")))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Commerce.SessionHeader != "woocommerce-session" {
		t.Fatalf("unexpected session header %q", cfg.Commerce.SessionHeader)
	}
	if cfg.Commerce.CartBatchSize != 3 {
		t.Fatalf("unexpected cart batch size %d", cfg.Commerce.CartBatchSize)
	}
	if cfg.Commerce.CartBatchDelay != 100*time.Millisecond {
		t.Fatalf("unexpected cart batch delay %v", cfg.Commerce.CartBatchDelay)
	}
	if cfg.Commerce.OrderTimeout != 10*time.Second {
		t.Fatalf("unexpected order timeout %v", cfg.Commerce.OrderTimeout)
	}
	if !cfg.Risk.FailOpen {
		t.Fatalf("expected fail-open default true")
	}
	if cfg.Checkout.SubmitWindow != 10*time.Minute || cfg.Checkout.SubmitMaxAttempts != 3 {
		t.Fatalf("unexpected submit guard defaults %v/%d", cfg.Checkout.SubmitWindow, cfg.Checkout.SubmitMaxAttempts)
	}
	if cfg.Checkout.ShippingInsideBDT != 80 || cfg.Checkout.ShippingOutsideBDT != 150 {
		t.Fatalf("unexpected shipping defaults %d/%d", cfg.Checkout.ShippingInsideBDT, cfg.Checkout.ShippingOutsideBDT)
	}
	if cfg.Analytics.FlushInterval != 2*time.Second || cfg.Analytics.ChunkSize != 5 {
		t.Fatalf("unexpected analytics defaults %v/%d", cfg.Analytics.FlushInterval, cfg.Analytics.ChunkSize)
	}
}

func TestLoadOverridesFromEnvMap(t *testing.T) {
	env := baseEnv()
	env["COMMERCE_CART_BATCH_SIZE"] = "5"
	env["COMMERCE_CART_BATCH_DELAY"] = "250"
	env["COMMERCE_ORDER_TIMEOUT"] = "15s"
	env["RISK_FAIL_OPEN"] = "false"
	env["RISK_BYPASS_SUFFIXES"] = "9999, 8888"
	env["ANALYTICS_PIXEL_ENDPOINT"] = "https://pixel.example.com/collect"
	env["ANALYTICS_SERVER_ENDPOINT"] = "https://capi.example.com/events"

	cfg, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(filepath.Join(t.TempDir(), "absent.env")))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Commerce.CartBatchSize != 5 {
		t.Fatalf("unexpected batch size %d", cfg.Commerce.CartBatchSize)
	}
	// Bare integers are treated as milliseconds.
	if cfg.Commerce.CartBatchDelay != 250*time.Millisecond {
		t.Fatalf("unexpected batch delay %v", cfg.Commerce.CartBatchDelay)
	}
	if cfg.Commerce.OrderTimeout != 15*time.Second {
		t.Fatalf("unexpected order timeout %v", cfg.Commerce.OrderTimeout)
	}
	if cfg.Risk.FailOpen {
		t.Fatalf("expected fail-open disabled")
	}
	if len(cfg.Risk.BypassSuffixes) != 2 || cfg.Risk.BypassSuffixes[0] != "9999" || cfg.Risk.BypassSuffixes[1] != "8888" {
		t.Fatalf("unexpected bypass suffixes %v", cfg.Risk.BypassSuffixes)
	}
	// The two delivery channels carry independent endpoints.
	if cfg.Analytics.PixelEndpoint == cfg.Analytics.ServerEndpoint {
		t.Fatalf("expected distinct analytics endpoints, both %q", cfg.Analytics.PixelEndpoint)
	}
	if cfg.Analytics.PixelEndpoint != "https://pixel.example.com/collect" {
		t.Fatalf("unexpected pixel endpoint %q", cfg.Analytics.PixelEndpoint)
	}
}

func TestLoadValidationFailure(t *testing.T) {
	_, err := Load(WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(filepath.Join(t.TempDir(), "absent.env")))
	var invalid *ValidationError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	fields := invalid.Fields()
	found := false
	for _, field := range fields {
		if field == "Commerce.Endpoint" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected Commerce.Endpoint reported, got %v", fields)
	}
}

func TestLoadReadsDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "COMMERCE_ENDPOINT=https://dotenv.example.com/graphql\n" +
		"RISK_HISTORY_ENDPOINT=https://risk.example.com/history\n" +
		"# comment line\n" +
		"REVALIDATE_SECRET=\"quoted-secret\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(WithEnvFile(path), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Commerce.Endpoint != "https://dotenv.example.com/graphql" {
		t.Fatalf("unexpected endpoint %q", cfg.Commerce.Endpoint)
	}
	if cfg.Revalidate.BearerSecret != "quoted-secret" {
		t.Fatalf("expected quotes stripped, got %q", cfg.Revalidate.BearerSecret)
	}
}

func TestEnvMapTakesPrecedenceOverDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("COMMERCE_ENDPOINT=https://file.example.com\nRISK_HISTORY_ENDPOINT=https://risk.example.com\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(
		WithEnvFile(path),
		WithEnvMap(map[string]string{"COMMERCE_ENDPOINT": "https://map.example.com"}),
		WithoutSystemEnv(),
	)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Commerce.Endpoint != "https://map.example.com" {
		t.Fatalf("expected env map to win, got %q", cfg.Commerce.Endpoint)
	}
}
