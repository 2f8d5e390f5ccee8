package analysis

import (
	"strings"

	"github.com/jdkato/prose/v2"

	"github.com/veritas-audit/backend/internal/connectors"
)

// keyword routing table, checked in order; first tool with a hit wins
var toolKeywords = []struct {
	tool     string
	reason   string
	keywords []string
}{
	{
		tool:     connectors.ToolServiceNow,
		reason:   "Question concerns change or service management records held in ServiceNow",
		keywords: []string{"change", "incident", "itsm", "servicenow", "cab", "emergency"},
	},
	{
		tool:     connectors.ToolJira,
		reason:   "Question concerns issue or defect tracking data held in Jira",
		keywords: []string{"ticket", "issue", "bug", "defect", "jira", "backlog"},
	},
	{
		tool:     connectors.ToolQTest,
		reason:   "Question concerns testing evidence held in QTest",
		keywords: []string{"test", "testing", "qa", "qtest", "validation", "execution"},
	},
	{
		tool:     connectors.ToolGnosis,
		reason:   "Question concerns documentation or procedures held in the Gnosis repository",
		keywords: []string{"document", "documentation", "procedure", "policy", "instruction", "manual", "gnosis"},
	},
	{
		tool:     connectors.ToolOracle,
		reason:   "Question concerns data held in the Oracle database",
		keywords: []string{"oracle"},
	},
	{
		tool:     connectors.ToolSQLServer,
		reason:   "Question concerns database records, access control or system configuration",
		keywords: []string{"access", "user", "role", "permission", "database", "account", "configuration", "backup", "log"},
	},
}

// SuggestTool routes a question to a tool by keyword when the LLM is
// unavailable. Unmatched questions default to sql_server, matching the
// original wizard's behavior.
func SuggestTool(question string) (string, string) {
	tokens := tokenize(question)

	for _, entry := range toolKeywords {
		for _, keyword := range entry.keywords {
			if tokens[keyword] {
				return entry.tool, entry.reason
			}
		}
	}

	return connectors.ToolSQLServer, "Default selection - SQL Server is commonly used for audit data extraction"
}

func tokenize(question string) map[string]bool {
	tokens := map[string]bool{}
	add := func(word string) {
		word = strings.ToLower(word)
		tokens[word] = true
		// crude singularization so "tickets" hits "ticket"
		if trimmed := strings.TrimSuffix(word, "s"); trimmed != word {
			tokens[trimmed] = true
		}
	}

	doc, err := prose.NewDocument(question,
		prose.WithExtraction(false),
		prose.WithTagging(false),
	)
	if err != nil {
		for _, word := range strings.Fields(question) {
			add(strings.Trim(word, ".,;:?!"))
		}
		return tokens
	}

	for _, token := range doc.Tokens() {
		add(token.Text)
	}

	return tokens
}
