package engine

import "strings"

// TaskKind is a coarse classification used to enrich prompts.
type TaskKind string

const (
	TaskKindCode     TaskKind = "code"
	TaskKindDocument TaskKind = "document"
	TaskKindResearch TaskKind = "research"
	TaskKindShell    TaskKind = "shell"
	TaskKindGeneral  TaskKind = "general"
)

// TaskAnalysis is the heuristic classification of a task prompt.
type TaskAnalysis struct {
	Kind       TaskKind
	Complexity string // "simple", "moderate" or "complex"
}

var taskKindKeywords = []struct {
	kind  TaskKind
	words []string
}{
	{TaskKindCode, []string{"function", "bug", "refactor", "test", "compile", "implement", "code", ".go", ".py", ".ts", "api"}},
	{TaskKindDocument, []string{"document", "report", "docx", "pdf", "markdown", "write up", "summary", "essay"}},
	{TaskKindResearch, []string{"research", "search", "find out", "compare", "look up", "investigate"}},
	{TaskKindShell, []string{"install", "run ", "command", "script", "directory", "folder", "copy", "move", "rename"}},
}

// AnalyzeTask classifies prompt by keyword score and estimates complexity
// from its length and the number of requested actions.
func AnalyzeTask(prompt string) TaskAnalysis {
	lower := strings.ToLower(prompt)
	best, bestScore := TaskKindGeneral, 0
	for _, k := range taskKindKeywords {
		score := 0
		for _, w := range k.words {
			if strings.Contains(lower, w) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = k.kind, score
		}
	}

	actions := strings.Count(lower, " and ") + strings.Count(lower, " then ") + strings.Count(lower, "\n- ") + strings.Count(lower, ", ")
	words := len(strings.Fields(prompt))
	complexity := "simple"
	switch {
	case words > 120 || actions >= 5:
		complexity = "complex"
	case words > 30 || actions >= 2:
		complexity = "moderate"
	}
	return TaskAnalysis{Kind: best, Complexity: complexity}
}
