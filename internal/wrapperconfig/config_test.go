package wrapperconfig

import "testing"

func TestValidate_ExactlyOneTransportRequired(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when no transport is set")
	}
}

func TestValidate_TwoTransportsRejected(t *testing.T) {
	cfg := &Config{Command: "foo", URL: "https://example.com"}
	cfg.SetDefaults()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when two transports are set")
	}
}

func TestValidate_SingleCommandTransportAccepted(t *testing.T) {
	cfg := &Config{Command: "foo"}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_InvalidURLRejected(t *testing.T) {
	cfg := &Config{URL: "not a url"}
	cfg.SetDefaults()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for malformed URL")
	}
}

func TestValidate_InvalidLogLevelRejected(t *testing.T) {
	cfg := &Config{Command: "foo", LogLevel: "verbose"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}

func TestSetDefaults_FillsStorePathsAndLogLevel(t *testing.T) {
	cfg := &Config{Command: "foo"}
	cfg.SetDefaults()
	if cfg.ServerConfigFile == "" || cfg.QuarantinePath == "" {
		t.Fatal("expected default store paths to be filled")
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("expected default log level info, got %q", cfg.LogLevel)
	}
	if cfg.ScanTimeoutDuration().Seconds() != 5 {
		t.Fatalf("expected default scan timeout 5s, got %v", cfg.ScanTimeoutDuration())
	}
}

func TestScanTimeoutDuration_FallsBackOnMalformedValue(t *testing.T) {
	cfg := &Config{ScanTimeout: "not-a-duration"}
	if cfg.ScanTimeoutDuration().Seconds() != 5 {
		t.Fatalf("expected fallback of 5s, got %v", cfg.ScanTimeoutDuration())
	}
}
