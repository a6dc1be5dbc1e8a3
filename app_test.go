package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"chat-renderer/internal/types"
)

// newTestApp starts an app outside the Wails runtime; event emission is
// skipped via the isWailsRuntime guard.
func newTestApp(t *testing.T) *App {
	t.Helper()
	app := NewApp()
	app.startup(context.Background())
	return app
}

func TestRenderMessageEmptyInput(t *testing.T) {
	app := newTestApp(t)
	_, err := app.RenderMessage("   \n  ")
	if err == nil {
		t.Fatal("expected error for empty content")
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrInvalidInput {
		t.Errorf("expected invalid-input AppError, got %v", err)
	}
}

func TestRenderMessageEndToEnd(t *testing.T) {
	app := newTestApp(t)
	app.NotifyMathReady() // keep the typeset poller from spinning

	msg := "# Result\n\n" +
		"The value \\(x < 2\\) holds [1](cite:source (2024)).\n\n" +
		"```go\nfmt.Println(\"$not math$\")\n```\n"

	result, err := app.RenderMessage(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.MathSpans != 1 {
		t.Errorf("expected 1 math span, got %d", result.MathSpans)
	}
	if result.Citations != 1 {
		t.Errorf("expected 1 citation, got %d", result.Citations)
	}
	if result.CodeBlocks != 1 {
		t.Errorf("expected 1 code block, got %d", result.CodeBlocks)
	}
	if !strings.Contains(result.HTML, "#:~:text=") {
		t.Errorf("citation not rewritten to text fragment: %q", result.HTML)
	}
	if !strings.Contains(result.HTML, "&lt;") {
		t.Errorf("math span angle bracket not escaped: %q", result.HTML)
	}
	if strings.Contains(result.HTML, "%%") {
		t.Errorf("unrestored placeholder in output: %q", result.HTML)
	}
}

func TestHistoryCopySemantics(t *testing.T) {
	app := newTestApp(t)
	app.historyMu.Lock()
	app.history = append(app.history, types.Message{Role: types.RoleUser, Content: "hi"})
	app.historyMu.Unlock()

	got := app.GetHistory()
	if len(got) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got))
	}
	got[0].Content = "mutated"
	if app.GetHistory()[0].Content != "hi" {
		t.Error("GetHistory returned a shared slice")
	}

	app.ClearHistory()
	if len(app.GetHistory()) != 0 {
		t.Error("history not cleared")
	}
}

func TestUpdateConfigNil(t *testing.T) {
	app := newTestApp(t)
	err := app.UpdateConfig(nil)
	if err == nil {
		t.Fatal("expected error for nil config")
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrInvalidInput {
		t.Errorf("expected invalid-input AppError, got %v", err)
	}
}

func TestNotifyMathReady(t *testing.T) {
	app := newTestApp(t)
	if app.isMathReady() {
		t.Fatal("math capability should start absent")
	}
	app.NotifyMathReady()
	if !app.isMathReady() {
		t.Error("math capability not recorded")
	}
}

func TestScheduleDiagramRenderCollapses(t *testing.T) {
	app := newTestApp(t)

	// Burst of requests within the window leaves exactly one pending.
	app.scheduleDiagramRender()
	app.scheduleDiagramRender()
	app.scheduleDiagramRender()

	app.diagramMu.Lock()
	pending := app.diagramPending
	app.diagramMu.Unlock()
	if !pending {
		t.Fatal("expected a pending diagram render")
	}

	// After the window fires, the guard resets so the next burst schedules
	// again.
	time.Sleep(diagramDebounceWindow + 100*time.Millisecond)
	app.diagramMu.Lock()
	pending = app.diagramPending
	app.diagramMu.Unlock()
	if pending {
		t.Error("pending flag not reset after debounce fired")
	}
}
