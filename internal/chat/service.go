// Package chat implements the conversational assistant over a CI's tool
// data. It inspects the CI's tool folders, scores each tool's data for
// relevance to the user's query, and answers from the most relevant
// slices, recording which tools contributed.
package chat

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veritas-audit/backend/internal/cache/redis"
	"github.com/veritas-audit/backend/internal/connectors"
	"github.com/veritas-audit/backend/internal/excel"
	"github.com/veritas-audit/backend/internal/llm"
	"github.com/veritas-audit/backend/internal/metrics"
	"github.com/veritas-audit/backend/internal/storage/models"
	"github.com/veritas-audit/backend/internal/storage/sqlite"
	"github.com/veritas-audit/backend/pkg/logger"
)

const (
	maxToolsPerAnswer = 3
	maxFilesPerTool   = 2
	maxHistory        = 10
	maxPreviewChars   = 1500
)

// ErrNoTools reports a CI with no tool data on disk.
var ErrNoTools = errors.New("no tool data available for this CI")

// Assistant is the slice of the LLM client the chat layer uses.
type Assistant interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
	ScoreRelevance(ctx context.Context, query, toolData string) (*llm.RelevanceResult, error)
}

// Request is one user turn.
type Request struct {
	SessionID string `json:"sessionId"`
	CIID      string `json:"ciId"`
	Message   string `json:"message"`
}

// Response is the assistant's answer plus how it was produced.
type Response struct {
	SessionID     string   `json:"sessionId"`
	Response      string   `json:"response"`
	ToolsUsed     []string `json:"toolsUsed"`
	ThinkingSteps []string `json:"thinkingSteps"`
}

// FileSummary describes one data file inside a tool folder.
type FileSummary struct {
	Name    string   `json:"name"`
	Rows    int      `json:"rows,omitempty"`
	Columns []string `json:"columns,omitempty"`
	Preview string   `json:"preview,omitempty"`
}

// ToolSummary describes one tool folder's contents for relevance scoring.
type ToolSummary struct {
	Tool  string        `json:"tool"`
	Files []FileSummary `json:"files"`
}

type scoredTool struct {
	summary ToolSummary
	score   int
	files   []string
}

type Service struct {
	db        *sqlite.Client
	cache     *redis.Client
	assistant Assistant
	toolsDir  string
	cacheTTL  time.Duration
}

func NewService(db *sqlite.Client, cache *redis.Client, assistant Assistant, toolsDir string, cacheTTL time.Duration) *Service {
	return &Service{
		db:        db,
		cache:     cache,
		assistant: assistant,
		toolsDir:  toolsDir,
		cacheTTL:  cacheTTL,
	}
}

// AvailableTools lists the tools that have data on disk for a CI.
func (s *Service) AvailableTools(ciID string) []string {
	var available []string
	for _, tool := range connectors.Tools() {
		folder := filepath.Join(s.toolsDir, ciID, connectors.Folder(tool))
		entries, err := os.ReadDir(folder)
		if err != nil || len(entries) == 0 {
			continue
		}
		available = append(available, tool)
	}
	return available
}

// Respond answers one user turn. Progress notes are appended to steps
// as they happen; the returned response carries the final list.
func (s *Service) Respond(ctx context.Context, req *Request, progress func(step string)) (*Response, error) {
	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}

	var steps []string
	note := func(format string, args ...interface{}) {
		step := fmt.Sprintf(format, args...)
		steps = append(steps, step)
		if progress != nil {
			progress(step)
		}
	}

	tools := s.AvailableTools(req.CIID)
	if len(tools) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoTools, req.CIID)
	}
	note("Scanning tool data for CI %s: found %d tools", req.CIID, len(tools))

	scored := s.scoreTools(ctx, req.CIID, req.Message, tools, note)
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if len(scored) > maxToolsPerAnswer {
		scored = scored[:maxToolsPerAnswer]
	}

	contextBlock, used := s.buildContext(req.CIID, scored)
	if len(used) == 0 {
		note("No tool data matched the question; answering from general audit knowledge")
	} else {
		note("Answering from: %s", strings.Join(used, ", "))
	}

	history, err := s.db.ListChatMessages(req.SessionID, maxHistory)
	if err != nil {
		logger.Warn("Failed to load chat history", zap.Error(err))
	}

	answer, err := s.complete(ctx, req, contextBlock, history)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	userMsg := &models.ChatMessage{
		SessionID: req.SessionID,
		CIID:      req.CIID,
		Role:      "user",
		Content:   req.Message,
		CreatedAt: now,
	}
	assistantMsg := &models.ChatMessage{
		SessionID: req.SessionID,
		CIID:      req.CIID,
		Role:      "assistant",
		Content:   answer,
		ToolsUsed: used,
		CreatedAt: now,
	}
	if err := s.db.InsertChatMessage(userMsg); err != nil {
		logger.Warn("Failed to persist user message", zap.Error(err))
	}
	if err := s.db.InsertChatMessage(assistantMsg); err != nil {
		logger.Warn("Failed to persist assistant message", zap.Error(err))
	}

	return &Response{
		SessionID:     req.SessionID,
		Response:      answer,
		ToolsUsed:     used,
		ThinkingSteps: steps,
	}, nil
}

// History returns a session's messages in chronological order.
func (s *Service) History(sessionID string, limit int) ([]models.ChatMessage, error) {
	return s.db.ListChatMessages(sessionID, limit)
}

// scoreTools ranks the available tools against the query. A keyword
// match is a fast path worth a high score without an LLM round trip;
// everything else goes through relevance scoring.
func (s *Service) scoreTools(ctx context.Context, ciID, query string, tools []string, note func(string, ...interface{})) []scoredTool {
	var scored []scoredTool
	queryLower := strings.ToLower(query)

	for _, tool := range tools {
		summary, err := s.summarizeTool(ctx, ciID, tool)
		if err != nil {
			logger.Warn("Failed to summarize tool",
				zap.String("tool", tool),
				zap.Error(err),
			)
			continue
		}

		if keywordMatch(queryLower, tool) {
			note("Keyword match on %s", tool)
			scored = append(scored, scoredTool{summary: *summary, score: 9})
			continue
		}

		rel, err := s.assistant.ScoreRelevance(ctx, query, describeSummary(summary))
		if err != nil {
			logger.Warn("Relevance scoring failed",
				zap.String("tool", tool),
				zap.Error(err),
			)
			continue
		}
		if rel.Relevant && rel.Score > 3 {
			note("%s scored %d/10 for this question", tool, rel.Score)
			scored = append(scored, scoredTool{summary: *summary, score: rel.Score, files: rel.RelevantFiles})
		}
	}

	return scored
}

// summarizeTool builds (or fetches from cache) the file-level summary
// of one tool folder.
func (s *Service) summarizeTool(ctx context.Context, ciID, tool string) (*ToolSummary, error) {
	key := ciID + ":" + tool

	var cached ToolSummary
	hit, err := s.cache.GetToolSummary(ctx, key, &cached)
	if err != nil {
		logger.Warn("Tool summary cache lookup failed", zap.Error(err))
	}
	if hit {
		metrics.CacheHits.WithLabelValues("tool_summary").Inc()
		return &cached, nil
	}
	metrics.CacheMisses.WithLabelValues("tool_summary").Inc()

	folder := filepath.Join(s.toolsDir, ciID, connectors.Folder(tool))
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, err
	}

	summary := &ToolSummary{Tool: tool}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		path := filepath.Join(folder, name)

		switch strings.ToLower(filepath.Ext(name)) {
		case ".xlsx":
			sheets, err := excel.ReadAllSheets(path)
			if err != nil {
				logger.Warn("Skipping unreadable sheet", zap.String("file", name), zap.Error(err))
				continue
			}
			fs := FileSummary{Name: name}
			for _, records := range sheets {
				fs.Rows += len(records)
				if len(fs.Columns) == 0 && len(records) > 0 {
					for col := range records[0] {
						fs.Columns = append(fs.Columns, col)
					}
					sort.Strings(fs.Columns)
				}
			}
			summary.Files = append(summary.Files, fs)
		case ".txt", ".md", ".html":
			text, err := extractPreview(path)
			if err != nil {
				logger.Warn("Skipping unreadable document", zap.String("file", name), zap.Error(err))
				continue
			}
			summary.Files = append(summary.Files, FileSummary{Name: name, Preview: text})
		}
	}

	if err := s.cache.SetToolSummary(ctx, key, summary, s.cacheTTL); err != nil {
		logger.Warn("Tool summary cache store failed", zap.Error(err))
	}

	return summary, nil
}

// buildContext flattens the top-ranked tools into a prompt block,
// capped at maxFilesPerTool files each.
func (s *Service) buildContext(ciID string, scored []scoredTool) (string, []string) {
	var sb strings.Builder
	var used []string

	for _, st := range scored {
		files := st.summary.Files
		if len(st.files) > 0 {
			files = filterFiles(files, st.files)
		}
		if len(files) > maxFilesPerTool {
			files = files[:maxFilesPerTool]
		}
		if len(files) == 0 {
			continue
		}

		used = append(used, st.summary.Tool)
		fmt.Fprintf(&sb, "=== %s ===\n", st.summary.Tool)
		for _, f := range files {
			if f.Preview != "" {
				fmt.Fprintf(&sb, "Document %s:\n%s\n\n", f.Name, f.Preview)
				continue
			}
			fmt.Fprintf(&sb, "File %s: %d rows, columns: %s\n", f.Name, f.Rows, strings.Join(f.Columns, ", "))
			sb.WriteString(s.sampleRows(ciID, st.summary.Tool, f.Name))
			sb.WriteString("\n")
		}
	}

	return sb.String(), used
}

// sampleRows renders the first few records of a spreadsheet as text.
func (s *Service) sampleRows(ciID, tool, file string) string {
	path := filepath.Join(s.toolsDir, ciID, connectors.Folder(tool), file)
	sheets, err := excel.ReadAllSheets(path)
	if err != nil {
		return ""
	}

	var sb strings.Builder
	for _, records := range sheets {
		for i, record := range records {
			if i >= 3 {
				break
			}
			keys := make([]string, 0, len(record))
			for k := range record {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			parts := make([]string, 0, len(keys))
			for _, k := range keys {
				parts = append(parts, fmt.Sprintf("%s=%s", k, record[k]))
			}
			fmt.Fprintf(&sb, "  %s\n", strings.Join(parts, " | "))
		}
		break
	}
	return sb.String()
}

func (s *Service) complete(ctx context.Context, req *Request, contextBlock string, history []models.ChatMessage) (string, error) {
	systemPrompt := fmt.Sprintf(`You are Veritas GPT, an audit data assistant for configuration item %s.
Answer the user's question using the tool data below. Cite which tool the
evidence came from. If the data does not answer the question, say so and
suggest which tool an auditor should check.

Tool data:
%s`, req.CIID, contextBlock)

	var conv strings.Builder
	for _, msg := range history {
		fmt.Fprintf(&conv, "%s: %s\n", msg.Role, msg.Content)
	}
	fmt.Fprintf(&conv, "user: %s", req.Message)

	resp, err := s.assistant.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   conv.String(),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	return resp.Content, nil
}

// keywordMatch is the fast-path router mirroring the analysis
// heuristics: an explicit mention of a tool's vocabulary skips LLM
// relevance scoring.
func keywordMatch(queryLower, tool string) bool {
	keywords := map[string][]string{
		connectors.ToolSQLServer:  {"sql server", "sql_server", "database access", "db user"},
		connectors.ToolOracle:     {"oracle"},
		connectors.ToolServiceNow: {"servicenow", "change request", "incident"},
		connectors.ToolJira:       {"jira", "ticket", "backlog"},
		connectors.ToolQTest:      {"qtest", "test execution", "test case"},
		connectors.ToolGnosis:     {"gnosis", "documentation", "procedure", "policy"},
	}
	for _, kw := range keywords[tool] {
		if strings.Contains(queryLower, kw) {
			return true
		}
	}
	return false
}

func describeSummary(summary *ToolSummary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Tool: %s\n", summary.Tool)
	for _, f := range summary.Files {
		if f.Preview != "" {
			fmt.Fprintf(&sb, "Document %s: %.200s\n", f.Name, f.Preview)
			continue
		}
		fmt.Fprintf(&sb, "File %s: %d rows, columns: %s\n", f.Name, f.Rows, strings.Join(f.Columns, ", "))
	}
	return sb.String()
}

func filterFiles(files []FileSummary, names []string) []FileSummary {
	keep := make(map[string]bool, len(names))
	for _, n := range names {
		keep[n] = true
	}
	var out []FileSummary
	for _, f := range files {
		if keep[f.Name] {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return files
	}
	return out
}

func extractPreview(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	text := string(data)
	if strings.ToLower(filepath.Ext(path)) == ".html" {
		stripped, err := connectors.StripHTML(text)
		if err == nil {
			text = stripped
		}
	}
	text = strings.TrimSpace(text)
	if len(text) > maxPreviewChars {
		text = text[:maxPreviewChars]
	}
	return text, nil
}
