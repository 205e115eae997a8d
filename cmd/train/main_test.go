package main

import (
	"reflect"
	"testing"

	"stock-signals/internal/config"
)

func TestParseOptionsDefaults(t *testing.T) {
	cfg := &config.Config{Symbols: []string{"005930", "000660"}, ReportDir: "reports"}

	opts, err := parseOptions(nil, cfg)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !reflect.DeepEqual(opts.symbols, cfg.Symbols) {
		t.Fatalf("expected configured symbols, got %+v", opts.symbols)
	}
	if opts.reportDir != "reports" {
		t.Fatalf("expected report dir passthrough, got %q", opts.reportDir)
	}
}

func TestParseOptionsOverrides(t *testing.T) {
	cfg := &config.Config{Symbols: []string{"005930"}, ReportDir: "reports"}

	opts, err := parseOptions([]string{"-symbols", "373220,373220, 000660", "-report-dir", ""}, cfg)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !reflect.DeepEqual(opts.symbols, []string{"373220", "000660"}) {
		t.Fatalf("expected deduped override, got %+v", opts.symbols)
	}
	if opts.reportDir != "" {
		t.Fatalf("expected empty report dir, got %q", opts.reportDir)
	}
}

func TestParseOptionsEmptySymbols(t *testing.T) {
	cfg := &config.Config{Symbols: []string{"005930"}}

	if _, err := parseOptions([]string{"-symbols", " , "}, cfg); err == nil {
		t.Fatal("expected error for empty symbol list")
	}
}
