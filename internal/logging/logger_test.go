package logging

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger_WhenDevelopmentEnvironment_ThenReturnsLogger(t *testing.T) {
	// Arrange & Act
	logger, err := NewLogger("development", "debug")

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}

	// Cleanup
	_ = logger.Sync()
}

func TestNewLogger_WhenInvalidLogLevel_ThenDefaultsToInfo(t *testing.T) {
	// Arrange & Act
	logger, err := NewLogger("production", "invalid-level")

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	_ = logger.Sync()
}

func TestNewFromEnv_WhenNoEnvironmentVariables_ThenUsesDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("LOG_LEVEL", "")

	logger, err := NewFromEnv()

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	_ = logger.Sync()
}

func TestFromZap_WhenNamedAndWith_ThenFieldsReachCore(t *testing.T) {
	// Arrange
	core, logs := observer.New(zap.DebugLevel)
	logger := FromZap(zap.New(core))

	// Act
	logger.Named("sqldb").With(zap.String("table", "orders")).Warn("insert failed")

	// Assert
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].LoggerName != "sqldb" {
		t.Errorf("expected logger name 'sqldb', got %q", entries[0].LoggerName)
	}
	if entries[0].ContextMap()["table"] != "orders" {
		t.Errorf("expected table field, got %v", entries[0].ContextMap())
	}
}

func TestZap_WhenNoOpLogger_ThenReturnsUsableLogger(t *testing.T) {
	zl := Zap(NewNoOpLogger())

	if zl == nil {
		t.Fatal("expected non-nil zap logger")
	}
	zl.Info("discarded")
}

func TestZap_WhenZapBacked_ThenSharesCore(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	Zap(FromZap(zap.New(core))).Info("through middleware")

	if logs.Len() != 1 {
		t.Errorf("expected entry on shared core, got %d", logs.Len())
	}
}

func TestOrNoOp_WhenNil_ThenReturnsNoOpLogger(t *testing.T) {
	if _, ok := OrNoOp(nil).(*NoOpLogger); !ok {
		t.Error("expected NoOpLogger for nil input")
	}
}

func TestNoOpLogger_AllMethods_WhenCalled_ThenDoNothing(t *testing.T) {
	// Arrange
	logger := NewNoOpLogger()

	// Act & Assert (should not panic)
	logger.Debug("test")
	logger.Info("test")
	logger.Warn("test")
	logger.Error("test")

	if logger.With(zap.String("key", "value")) != logger {
		t.Error("expected With to return same logger instance")
	}
	if logger.Named("component") != logger {
		t.Error("expected Named to return same logger instance")
	}
	if err := logger.Sync(); err != nil {
		t.Errorf("expected no error from Sync, got %v", err)
	}
}

func TestFromZap_WhenCallerEnabled_ThenAnnotatesCallingFile(t *testing.T) {
	// Arrange
	core, logs := observer.New(zap.InfoLevel)
	logger := FromZap(zap.New(core, zap.AddCaller()))

	// Act
	logger.Info("through interface")
	Zap(logger).Info("through zap")

	// Assert
	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	for _, e := range entries {
		if got := filepath.Base(e.Caller.File); got != "logger_test.go" {
			t.Errorf("%q: expected caller logger_test.go, got %s", e.Message, got)
		}
	}
}
