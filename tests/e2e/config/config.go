package config

import (
	"bufio"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultBaseURL is the public demo of the XYZ Bank app.
const DefaultBaseURL = "https://www.globalsqa.com/angularJs-protractor/BankingProject/"

// TestConfig holds all configuration for E2E tests
type TestConfig struct {
	BaseURL     string
	Timeout     time.Duration
	Headless    bool
	SlowMo      int
	Screenshots bool
	// VisualDir holds visual-baseline, visual-actual and visual-diff
	VisualDir     string
	Threshold     float64
	MaxDiffPixels int
	Reachable     bool
}

var loadOnce sync.Once

// loadDotEnv loads simple KEY=VALUE lines from .env if present.
// Existing environment variables take precedence and are not overwritten.
func loadDotEnv() {
	f, err := os.Open(".env")
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		i := strings.Index(line, "=")
		if i <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:i])
		val := strings.Trim(strings.TrimSpace(line[i+1:]), `"'`)
		if val == "" {
			continue
		}
		if os.Getenv(key) == "" {
			_ = os.Setenv(key, val)
		}
	}
}

// GetConfig returns the test configuration from environment variables
func GetConfig() *TestConfig {
	loadOnce.Do(loadDotEnv)

	baseURL := os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	slowMo := 0
	if v, err := strconv.Atoi(os.Getenv("SLOW_MO")); err == nil {
		slowMo = v
	}
	threshold := 0.1
	if v, err := strconv.ParseFloat(os.Getenv("VISUAL_THRESHOLD"), 64); err == nil {
		threshold = v
	}
	maxDiff := 0
	if v, err := strconv.Atoi(os.Getenv("VISUAL_MAX_DIFF_PIXELS")); err == nil {
		maxDiff = v
	}
	visualDir := os.Getenv("VISUAL_DIR")
	if visualDir == "" {
		visualDir = filepath.Join(".", "test-results")
	}

	reachable := os.Getenv("E2E_SKIP_REACHABILITY") == "true" || probe(baseURL)
	slog.Debug("e2e config resolved", "base_url", baseURL, "reachable", reachable)

	return &TestConfig{
		BaseURL:       baseURL,
		Timeout:       30 * time.Second,
		Headless:      os.Getenv("HEADLESS") != "false",
		SlowMo:        slowMo,
		Screenshots:   os.Getenv("SCREENSHOTS") != "false",
		VisualDir:     visualDir,
		Threshold:     threshold,
		MaxDiffPixels: maxDiff,
		Reachable:     reachable,
	}
}

// probe reports whether a TCP connection to the base URL's host succeeds.
func probe(base string) bool {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return false
	}
	host := u.Host
	if u.Port() == "" {
		if u.Scheme == "https" {
			host += ":443"
		} else {
			host += ":80"
		}
	}
	conn, err := net.DialTimeout("tcp", host, 2*time.Second)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
