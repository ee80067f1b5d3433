package corpus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ChunkTypeSyntaxGuideline 用户确认后的查询示例
const ChunkTypeSyntaxGuideline = "syntax_guideline"

// Metadata 语料附加信息
type Metadata struct {
	Language string `json:"language"`
}

// Record 语料文件中的一条记录
type Record struct {
	ChunkType      string          `json:"chunk_type"`
	CollectionName string          `json:"collection_name"`
	Prompt         string          `json:"prompt"`
	Query          json.RawMessage `json:"query"`
	Metadata       Metadata        `json:"metadata"`
}

// Content 返回用于向量化的文本
func (r Record) Content() string {
	var b strings.Builder
	b.WriteString("Collection: ")
	b.WriteString(r.CollectionName)
	b.WriteString("\nQuestion: ")
	b.WriteString(r.Prompt)
	b.WriteString("\nQuery: ")
	b.Write(r.Query)
	return b.String()
}

// FileStore 把语料保存为单个 JSON 数组文件，只追加不修改
type FileStore struct {
	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

// NewFileStore 创建语料文件存储
func NewFileStore(path string, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{
		path:   path,
		logger: logger.With(zap.String("component", "corpus")),
	}
}

// Path 返回语料文件路径
func (s *FileStore) Path() string { return s.path }

// Append 追加一条记录并原子回写整个文件
func (s *FileStore) Append(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(rec.Query) == 0 {
		return errors.New("corpus record has no query")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		return err
	}
	records = append(records, rec)

	data, err := encode(records)
	if err != nil {
		return fmt.Errorf("encode corpus: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create corpus directory: %w", err)
	}
	if err := atomicWriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write corpus: %w", err)
	}

	s.logger.Info("corpus record appended",
		zap.String("collection", rec.CollectionName),
		zap.Int("total", len(records)))
	return nil
}

// Load 读取全部记录，文件不存在时返回空列表
func (s *FileStore) Load(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *FileStore) read() ([]Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return []Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []Record{}, nil
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse corpus %s: %w", s.path, err)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// 4 空格缩进，保留非 ASCII 与 HTML 字符原样
func encode(records []Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
