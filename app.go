package main

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/wailsapp/wails/v2/pkg/runtime"

	"chat-renderer/internal/chat"
	"chat-renderer/internal/config"
	"chat-renderer/internal/errors"
	"chat-renderer/internal/logger"
	"chat-renderer/internal/markdown"
	"chat-renderer/internal/pipeline"
	"chat-renderer/internal/types"
)

// Event names for frontend communication
const (
	EventChatStreamChunk = "chat-stream-chunk"
	EventChatMessage     = "chat-message"
	EventTypesetRequest  = "typeset-request"
	EventRenderDiagrams  = "render-diagrams"
)

// typesetPollInterval is how often a typeset request re-checks for the math
// engine before the frontend has signalled readiness.
const typesetPollInterval = 200 * time.Millisecond

// diagramDebounceWindow collapses bursts of diagram render requests into a
// single deferred invocation.
const diagramDebounceWindow = 300 * time.Millisecond

// App is the main Wails application controller. It owns the configuration,
// the render pipeline, the chat client and the conversation history.
type App struct {
	ctx      context.Context
	config   *config.Manager
	pipeline *pipeline.Pipeline
	chat     *chat.Client
	journal  *errors.Journal

	// Conversation history, oldest first.
	history   []types.Message
	historyMu sync.RWMutex

	// Math typesetting capability: the frontend flips this once MathJax has
	// loaded; requests before that poll until it appears.
	mathReady   bool
	mathReadyMu sync.RWMutex

	// Diagram scheduling: a debounced one-shot with a pending guard so at
	// most one invocation is outstanding per window.
	diagramDebounce func(func())
	diagramPending  bool
	diagramMu       sync.Mutex

	// isWailsRuntime indicates if the app is running in a Wails environment
	// This is used to safely skip EventsEmit calls during tests
	isWailsRuntime bool
}

// NewApp creates a new App application struct. Dependencies are initialized
// in startup once the runtime context is available.
func NewApp() *App {
	return &App{
		diagramDebounce: debounce.New(diagramDebounceWindow),
	}
}

// SetWailsRuntime sets the Wails runtime flag.
// This should be called from main.go when the app is started in Wails mode.
func (a *App) SetWailsRuntime(isWails bool) {
	a.isWailsRuntime = isWails
}

// safeEmit safely emits an event to the frontend.
// It only emits events when running in a Wails environment.
func (a *App) safeEmit(eventName string, data ...interface{}) {
	if !a.isWailsRuntime {
		logger.Debug("event emit skipped (not in Wails runtime)",
			logger.String("event", eventName))
		return
	}
	runtime.EventsEmit(a.ctx, eventName, data...)
}

// startup is called by Wails when the application starts. It loads the
// configuration and builds the render pipeline; the chat client is created
// lazily so the app works without an API key for render-only use.
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	mgr, err := config.NewManager("")
	if err == nil {
		if loadErr := mgr.Load(); loadErr != nil {
			logger.Warn("config load failed, using defaults", logger.Err(loadErr))
		}
		a.config = mgr
	} else {
		logger.Warn("config manager unavailable, using defaults", logger.Err(err))
	}

	cfg := a.currentConfig()
	if l := logger.GetLogger(); l != nil {
		l.SetLevel(logger.ParseLevel(cfg.LogLevel))
	}

	if journal, jerr := errors.NewJournal(""); jerr != nil {
		logger.Warn("error journal unavailable", logger.Err(jerr))
	} else {
		a.journal = journal
	}

	a.rebuildPipeline(cfg)
	logger.Info("application started")
}

// shutdown is called by Wails when the application terminates.
func (a *App) shutdown(ctx context.Context) {
	logger.Info("application shutting down")
	logger.Close()
}

// currentConfig returns the loaded configuration or defaults.
func (a *App) currentConfig() *types.Config {
	if a.config != nil {
		return a.config.GetConfig()
	}
	return &types.Config{
		HighlightStyle: config.DefaultHighlightStyle,
		HardWraps:      true,
		Sanitize:       true,
		LogLevel:       config.DefaultLogLevel,
	}
}

// rebuildPipeline constructs the markdown converter and render pipeline for
// the given configuration. Called at startup and after config updates.
func (a *App) rebuildPipeline(cfg *types.Config) {
	converter := markdown.NewConverter(markdown.Options{
		HighlightStyle: cfg.HighlightStyle,
		HardWraps:      cfg.HardWraps,
		Sanitize:       cfg.Sanitize,
	})
	a.pipeline = pipeline.New(converter)
}

// RenderMessage renders one chat message to safe HTML and schedules math
// typesetting and diagram rendering for the updated display surface.
func (a *App) RenderMessage(content string) (*types.RenderResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, types.NewAppError(types.ErrInvalidInput, "message content is empty", nil)
	}

	result, err := a.pipeline.Run(content)
	if err != nil {
		a.recordFailure(errors.StageRender, err, content)
		return nil, err
	}

	if result.MathSpans > 0 {
		go a.requestTypeset()
	}
	if result.HasDiagrams {
		a.scheduleDiagramRender()
	}
	return result, nil
}

// recordFailure journals an error when the journal is available.
func (a *App) recordFailure(stage errors.Stage, err error, input string) {
	if a.journal != nil {
		a.journal.Record(stage, err, input)
	}
}

// GetErrorLog returns journaled failures for the diagnostics view.
func (a *App) GetErrorLog() []errors.Record {
	if a.journal == nil {
		return nil
	}
	return a.journal.List()
}

// ClearErrorLog discards journaled failures.
func (a *App) ClearErrorLog() error {
	if a.journal == nil {
		return nil
	}
	return a.journal.Clear()
}

// SendChatMessage appends a user message to the history, streams the
// assistant's reply (emitting chunks to the frontend), renders the complete
// reply and returns the rendered assistant message.
func (a *App) SendChatMessage(content string) (*types.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, types.NewAppError(types.ErrInvalidInput, "message content is empty", nil)
	}
	if err := a.ensureChatClient(); err != nil {
		a.recordFailure(errors.StageConfig, err, "")
		return nil, err
	}

	userMsg := types.Message{
		Role:      types.RoleUser,
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
	}
	a.historyMu.Lock()
	a.history = append(a.history, userMsg)
	historyCopy := make([]types.Message, len(a.history))
	copy(historyCopy, a.history)
	a.historyMu.Unlock()

	reply, err := a.chat.Stream(a.ctx, historyCopy, func(delta string) {
		a.safeEmit(EventChatStreamChunk, delta)
	})
	if err != nil {
		a.recordFailure(errors.StageChat, err, content)
		return nil, err
	}

	result, err := a.pipeline.Run(reply)
	if err != nil {
		// Rendering failed; keep the raw reply so the conversation survives.
		logger.Warn("assistant reply failed to render, storing raw text", logger.Err(err))
		a.recordFailure(errors.StageRender, err, reply)
		result = &types.RenderResult{}
	}

	assistantMsg := types.Message{
		Role:      types.RoleAssistant,
		Content:   reply,
		Timestamp: time.Now().UnixMilli(),
		HTML:      result.HTML,
	}
	a.historyMu.Lock()
	a.history = append(a.history, assistantMsg)
	a.historyMu.Unlock()

	a.safeEmit(EventChatMessage, assistantMsg)
	if result.MathSpans > 0 {
		go a.requestTypeset()
	}
	if result.HasDiagrams {
		a.scheduleDiagramRender()
	}
	return &assistantMsg, nil
}

// ensureChatClient lazily creates the chat client from the current
// configuration.
func (a *App) ensureChatClient() error {
	if a.chat != nil {
		return nil
	}
	if a.config == nil {
		return types.NewAppError(types.ErrConfig, "configuration unavailable", nil)
	}

	client, err := chat.NewClient(a.ctx, chat.Config{
		APIKey:       a.config.GetAPIKey(),
		BaseURL:      a.config.GetBaseURL(),
		Model:        a.config.GetModel(),
		SystemPrompt: a.config.GetConfig().SystemPrompt,
	})
	if err != nil {
		return err
	}
	a.chat = client
	return nil
}

// GetHistory returns a copy of the conversation history.
func (a *App) GetHistory() []types.Message {
	a.historyMu.RLock()
	defer a.historyMu.RUnlock()
	out := make([]types.Message, len(a.history))
	copy(out, a.history)
	return out
}

// ClearHistory discards the conversation.
func (a *App) ClearHistory() {
	a.historyMu.Lock()
	a.history = nil
	a.historyMu.Unlock()
	logger.Info("conversation history cleared")
}

// GetConfig returns the current configuration for the settings UI.
func (a *App) GetConfig() *types.Config {
	return a.currentConfig()
}

// UpdateConfig persists a new configuration and rebuilds the pipeline and
// chat client so the changes take effect immediately.
func (a *App) UpdateConfig(cfg *types.Config) error {
	if cfg == nil {
		return types.NewAppError(types.ErrInvalidInput, "config is nil", nil)
	}
	if a.config == nil {
		return types.NewAppError(types.ErrConfig, "configuration unavailable", nil)
	}

	a.config.SetConfig(cfg)
	if err := a.config.Save(); err != nil {
		return err
	}

	if l := logger.GetLogger(); l != nil {
		l.SetLevel(logger.ParseLevel(cfg.LogLevel))
	}
	a.rebuildPipeline(cfg)
	a.chat = nil // recreated with the new settings on next use
	logger.Info("configuration updated")
	return nil
}

// NotifyMathReady is called by the frontend once MathJax has finished
// loading; pending typeset requests stop polling and fire.
func (a *App) NotifyMathReady() {
	a.mathReadyMu.Lock()
	a.mathReady = true
	a.mathReadyMu.Unlock()
	logger.Debug("math typesetting capability available")
}

// isMathReady reports whether the typesetting capability has appeared.
func (a *App) isMathReady() bool {
	a.mathReadyMu.RLock()
	defer a.mathReadyMu.RUnlock()
	return a.mathReady
}

// requestTypeset asks the frontend to typeset the display surface. The
// capability may not be loaded yet; absence is polled, not failed.
func (a *App) requestTypeset() {
	for !a.isMathReady() {
		select {
		case <-time.After(typesetPollInterval):
		case <-a.done():
			return
		}
	}
	a.safeEmit(EventTypesetRequest)
}

// done returns the runtime context's done channel, or nil (blocks forever)
// when running outside Wails.
func (a *App) done() <-chan struct{} {
	if a.ctx != nil {
		return a.ctx.Done()
	}
	return nil
}

// scheduleDiagramRender asks the frontend to hydrate diagram containers.
// Requests within the debounce window collapse into one invocation; the
// pending flag prevents stacking more than one deferred call.
func (a *App) scheduleDiagramRender() {
	a.diagramMu.Lock()
	if a.diagramPending {
		a.diagramMu.Unlock()
		return
	}
	a.diagramPending = true
	a.diagramMu.Unlock()

	a.diagramDebounce(func() {
		a.diagramMu.Lock()
		a.diagramPending = false
		a.diagramMu.Unlock()
		a.safeEmit(EventRenderDiagrams)
	})
}
