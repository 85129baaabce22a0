package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func resetState() {
	CloseAll()
	loggers = make(map[Category]*Logger)
	logsDir = ""
	workspace = ""
	configLoaded = false
	config = loggingConfig{}
}

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, ".archon")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "config.json"), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
}

// TestAllCategoriesLog tests that all categories create log files when debug_mode is true
func TestAllCategoriesLog(t *testing.T) {
	tempDir := t.TempDir()

	writeConfig(t, tempDir, `{
		"logging": {
			"level": "debug",
			"debug_mode": true
		}
	}`)

	resetState()
	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	defer resetState()

	if !IsDebugMode() {
		t.Error("Expected debug mode to be enabled")
	}

	categories := []Category{
		CategoryBoot,
		CategorySession,
		CategoryConversation,
		CategoryPolicy,
		CategoryReasoner,
		CategoryReviewer,
		CategoryRevision,
		CategorySpeech,
		CategoryStore,
		CategoryAPI,
		CategoryConfig,
	}

	for _, cat := range categories {
		if !IsCategoryEnabled(cat) {
			t.Errorf("Category %s should be enabled", cat)
		}

		logger := Get(cat)
		logger.Info("Test info message for %s", cat)
		logger.Debug("Test debug message for %s", cat)
		logger.Warn("Test warn message for %s", cat)
		logger.Error("Test error message for %s", cat)
	}

	CloseAll()

	entries, err := os.ReadDir(filepath.Join(tempDir, ".archon", "logs"))
	if err != nil {
		t.Fatalf("Failed to read logs dir: %v", err)
	}
	found := make(map[string]bool)
	for _, e := range entries {
		for _, cat := range categories {
			if strings.HasSuffix(e.Name(), "_"+string(cat)+".log") {
				found[string(cat)] = true
			}
		}
	}
	for _, cat := range categories {
		if !found[string(cat)] {
			t.Errorf("No log file created for category %s", cat)
		}
	}
}

// TestProductionModeNoLogs tests that no log files are created without debug_mode
func TestProductionModeNoLogs(t *testing.T) {
	tempDir := t.TempDir()

	resetState()
	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	defer resetState()

	if IsDebugMode() {
		t.Error("Expected debug mode to be disabled with no config")
	}

	Get(CategorySession).Info("should go nowhere")
	Boot("should go nowhere either")

	if _, err := os.Stat(filepath.Join(tempDir, ".archon", "logs")); !os.IsNotExist(err) {
		t.Error("Logs directory should not exist in production mode")
	}
}

// TestCategoryFilter tests that disabled categories return no-op loggers
func TestCategoryFilter(t *testing.T) {
	tempDir := t.TempDir()

	writeConfig(t, tempDir, `{
		"logging": {
			"level": "info",
			"debug_mode": true,
			"categories": {
				"session": true,
				"api": false
			}
		}
	}`)

	resetState()
	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	defer resetState()

	if !IsCategoryEnabled(CategorySession) {
		t.Error("session category should be enabled")
	}
	if IsCategoryEnabled(CategoryAPI) {
		t.Error("api category should be disabled")
	}

	// Disabled category logger must be a silent no-op
	l := Get(CategoryAPI)
	if l.logger != nil {
		t.Error("Expected no-op logger for disabled category")
	}
	l.Info("dropped")

	// Unlisted categories default to enabled
	if !IsCategoryEnabled(CategoryReasoner) {
		t.Error("unlisted category should default to enabled")
	}
}

// TestConvenienceFuncs tests that the category convenience functions write to
// their category's log file at the expected level
func TestConvenienceFuncs(t *testing.T) {
	tempDir := t.TempDir()

	writeConfig(t, tempDir, `{
		"logging": {
			"level": "debug",
			"debug_mode": true
		}
	}`)

	resetState()
	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	defer resetState()

	API("api debug via API")
	APIDebug("api debug via APIDebug")
	APIWarn("api warning")
	SessionError("session failure")
	CloseAll()

	readCategory := func(cat string) string {
		entries, err := os.ReadDir(filepath.Join(tempDir, ".archon", "logs"))
		if err != nil {
			t.Fatalf("Failed to read logs dir: %v", err)
		}
		for _, e := range entries {
			if strings.HasSuffix(e.Name(), "_"+cat+".log") {
				content, err := os.ReadFile(filepath.Join(tempDir, ".archon", "logs", e.Name()))
				if err != nil {
					t.Fatalf("Failed to read log: %v", err)
				}
				return string(content)
			}
		}
		t.Fatalf("No log file for category %s", cat)
		return ""
	}

	api := readCategory("api")
	for _, want := range []string{"api debug via API", "api debug via APIDebug", "api warning"} {
		if !strings.Contains(api, want) {
			t.Errorf("api log missing %q: %s", want, api)
		}
	}
	if !strings.Contains(api, "[WARN]") {
		t.Errorf("APIWarn should log at warn level: %s", api)
	}

	session := readCategory("session")
	if !strings.Contains(session, "session failure") || !strings.Contains(session, "[ERROR]") {
		t.Errorf("SessionError should log at error level: %s", session)
	}
}

// TestLevelFilter tests that messages below the configured level are dropped
func TestLevelFilter(t *testing.T) {
	tempDir := t.TempDir()

	writeConfig(t, tempDir, `{
		"logging": {
			"level": "warn",
			"debug_mode": true
		}
	}`)

	resetState()
	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	defer resetState()

	l := Get(CategoryPolicy)
	l.Debug("dropped debug")
	l.Info("dropped info")
	l.Warn("kept warn")
	l.Error("kept error")
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(tempDir, ".archon", "logs"))
	if err != nil {
		t.Fatalf("Failed to read logs dir: %v", err)
	}
	var content []byte
	for _, e := range entries {
		if strings.Contains(e.Name(), "policy") {
			content, err = os.ReadFile(filepath.Join(tempDir, ".archon", "logs", e.Name()))
			if err != nil {
				t.Fatalf("Failed to read log: %v", err)
			}
		}
	}
	text := string(content)
	if strings.Contains(text, "dropped") {
		t.Errorf("Log contains dropped messages: %s", text)
	}
	if !strings.Contains(text, "kept warn") || !strings.Contains(text, "kept error") {
		t.Errorf("Log missing kept messages: %s", text)
	}
}
