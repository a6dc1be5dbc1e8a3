// Package errors provides a persistent journal of render and chat failures.
// Entries survive restarts so intermittent problems (a model emitting
// malformed markup, an API that times out) can be inspected from the
// diagnostics view instead of scrolling logs.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"chat-renderer/internal/logger"
	"chat-renderer/internal/types"
)

// Stage 错误阶段枚举
type Stage string

const (
	StageRender Stage = "render" // 渲染阶段
	StageChat   Stage = "chat"   // 聊天请求阶段
	StageConfig Stage = "config" // 配置阶段
)

// Record 错误记录
type Record struct {
	ID        string          `json:"id"`        // 唯一标识符
	Stage     Stage           `json:"stage"`     // 出错阶段
	Code      types.ErrorCode `json:"code"`      // 错误代码
	Message   string          `json:"message"`   // 错误信息
	Input     string          `json:"input"`     // 触发错误的消息片段
	Timestamp time.Time       `json:"timestamp"` // 错误发生时间
	Count     int             `json:"count"`     // 相同错误的重复次数
}

// inputSnippetLen caps how much of the offending message is journaled.
const inputSnippetLen = 200

// Journal persists error records to a JSON file under the user's config
// directory. Safe for concurrent use.
type Journal struct {
	filePath string
	mu       sync.RWMutex
	records  map[string]*Record // key: ID
}

// NewJournal creates a journal backed by filePath; an empty path places the
// file next to the application config.
func NewJournal(filePath string) (*Journal, error) {
	if filePath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		filePath = filepath.Join(homeDir, ".config", "chat-renderer", "errors.json")
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	j := &Journal{
		filePath: filePath,
		records:  make(map[string]*Record),
	}
	if err := j.load(); err != nil {
		// A corrupt journal is not worth failing startup over.
		logger.Warn("error journal unreadable, starting fresh", logger.Err(err))
	}
	return j, nil
}

// Record journals an error. Repeated identical failures (same stage, code
// and message) increment the existing record instead of growing the file.
func (j *Journal) Record(stage Stage, err error, input string) {
	if err == nil {
		return
	}

	code := types.ErrInternal
	msg := err.Error()
	var appErr *types.AppError
	if stderrors.As(err, &appErr) {
		code = appErr.Code
		msg = appErr.Message
	}

	if len(input) > inputSnippetLen {
		input = input[:inputSnippetLen]
	}
	id := fmt.Sprintf("%s/%s/%s", stage, code, msg)

	j.mu.Lock()
	if existing, ok := j.records[id]; ok {
		existing.Count++
		existing.Timestamp = time.Now()
		existing.Input = input
	} else {
		j.records[id] = &Record{
			ID:        id,
			Stage:     stage,
			Code:      code,
			Message:   msg,
			Input:     input,
			Timestamp: time.Now(),
			Count:     1,
		}
	}
	j.mu.Unlock()

	if saveErr := j.save(); saveErr != nil {
		logger.Warn("failed to persist error journal", logger.Err(saveErr))
	}
}

// List returns all records, newest first.
func (j *Journal) List() []Record {
	j.mu.RLock()
	out := make([]Record, 0, len(j.records))
	for _, r := range j.records {
		out = append(out, *r)
	}
	j.mu.RUnlock()

	sort.Slice(out, func(a, b int) bool {
		return out[a].Timestamp.After(out[b].Timestamp)
	})
	return out
}

// Clear discards all records and removes the journal file.
func (j *Journal) Clear() error {
	j.mu.Lock()
	j.records = make(map[string]*Record)
	j.mu.Unlock()

	if err := os.Remove(j.filePath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// load reads the journal file; a missing file is an empty journal.
func (j *Journal) load() error {
	data, err := os.ReadFile(j.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var records []*Record
	if err := json.Unmarshal(data, &records); err != nil {
		return err
	}

	j.mu.Lock()
	for _, r := range records {
		j.records[r.ID] = r
	}
	j.mu.Unlock()
	return nil
}

// save writes the journal file atomically via a temp file rename.
func (j *Journal) save() error {
	j.mu.RLock()
	records := make([]*Record, 0, len(j.records))
	for _, r := range j.records {
		records = append(records, r)
	}
	j.mu.RUnlock()

	sort.Slice(records, func(a, b int) bool {
		return records[a].Timestamp.Before(records[b].Timestamp)
	})

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}

	tmp := j.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, j.filePath)
}
