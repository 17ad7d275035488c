package config

import "testing"

func TestLoadPipelineDefaults(t *testing.T) {
	t.Setenv("NATS_PROCESS_SUBJECT", "")
	t.Setenv("NATS_CATEGORIZE_SUBJECT", "")
	t.Setenv("PAYLOAD_TTL_SECONDS", "")
	t.Setenv("WATCH_INTERVAL_SECONDS", "")
	t.Setenv("DEFAULT_ACCOUNT_HOLDER", "")
	t.Setenv("CATEGORIZE_BATCH_SIZE", "")
	t.Setenv("IMPORT_FLUSH_EVERY", "")
	t.Setenv("STORAGE_RETRY_ATTEMPTS", "")
	t.Setenv("STORAGE_RETRY_DELAY_MS", "")

	cfg := Load()
	if cfg.NATSProcessSubject != "statements.process" {
		t.Fatalf("expected default process subject, got %q", cfg.NATSProcessSubject)
	}
	if cfg.NATSCategorizeSubject != "statements.categorize" {
		t.Fatalf("expected default categorize subject, got %q", cfg.NATSCategorizeSubject)
	}
	if cfg.PayloadTTLSeconds != 3600 {
		t.Fatalf("expected default payload ttl 3600, got %d", cfg.PayloadTTLSeconds)
	}
	if cfg.WatchIntervalSeconds != 30 {
		t.Fatalf("expected default watch interval 30, got %d", cfg.WatchIntervalSeconds)
	}
	if cfg.DefaultAccountHolder != "local" {
		t.Fatalf("expected default account holder local, got %q", cfg.DefaultAccountHolder)
	}
	if cfg.CategorizeBatchSize != 20 {
		t.Fatalf("expected default batch size 20, got %d", cfg.CategorizeBatchSize)
	}
	if cfg.ImportFlushEvery != 100 {
		t.Fatalf("expected default flush cadence 100, got %d", cfg.ImportFlushEvery)
	}
	if cfg.StorageRetryAttempts != 3 {
		t.Fatalf("expected default storage retry attempts 3, got %d", cfg.StorageRetryAttempts)
	}
	if cfg.StorageRetryDelayMS != 250 {
		t.Fatalf("expected default storage retry delay 250, got %d", cfg.StorageRetryDelayMS)
	}
}

func TestLoadParsesPipelineOverrides(t *testing.T) {
	t.Setenv("API_PORT", "9999")
	t.Setenv("WATCH_INTERVAL_SECONDS", "5")
	t.Setenv("PROVIDER_RPS", "0.5")
	t.Setenv("DEFAULT_ACCOUNT_HOLDER", "household")
	t.Setenv("API_RATE_LIMIT_RPS", "25")

	cfg := Load()
	if cfg.APIPort != "9999" {
		t.Fatalf("expected api port override, got %q", cfg.APIPort)
	}
	if cfg.WatchIntervalSeconds != 5 {
		t.Fatalf("expected watch interval 5, got %d", cfg.WatchIntervalSeconds)
	}
	if cfg.ProviderRPS != 0.5 {
		t.Fatalf("expected provider rps 0.5, got %v", cfg.ProviderRPS)
	}
	if cfg.DefaultAccountHolder != "household" {
		t.Fatalf("expected account holder override, got %q", cfg.DefaultAccountHolder)
	}
	if cfg.APIRateLimitRPS != 25 {
		t.Fatalf("expected rate limit 25, got %d", cfg.APIRateLimitRPS)
	}
}

func TestLoadMalformedNumbersFallBack(t *testing.T) {
	t.Setenv("CATEGORIZE_BATCH_SIZE", "lots")
	t.Setenv("PROVIDER_RPS", "fast")

	cfg := Load()
	if cfg.CategorizeBatchSize != 20 {
		t.Fatalf("expected fallback batch size 20, got %d", cfg.CategorizeBatchSize)
	}
	if cfg.ProviderRPS != 2 {
		t.Fatalf("expected fallback provider rps 2, got %v", cfg.ProviderRPS)
	}
}
