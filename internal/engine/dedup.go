package engine

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Deduplication defaults.
const (
	dedupWindow          = 60 * time.Second
	defaultMaxDuplicates = 2
	defaultMaxSemantic   = 2
	defaultToolRateLimit = 30
)

// defaultRateLimits caps calls per tool per rolling window.
var defaultRateLimits = map[string]int{
	"web_search":  10,
	"web_fetch":   15,
	"run_command": 20,
}

// DedupKind says why the deduplicator stopped a call.
type DedupKind string

const (
	DedupRateLimited     DedupKind = "rate_limited"
	DedupDuplicate       DedupKind = "duplicate"
	DedupDuplicateCached DedupKind = "duplicate_cached"
	DedupSemantic        DedupKind = "semantic_duplicate"
)

// DedupVerdict is the result of Deduplicator.Check. A zero verdict means the
// call may proceed.
type DedupVerdict struct {
	Blocked bool
	Kind    DedupKind
	Reason  string
	Result  string // cached result for DedupDuplicateCached
}

type callRecord struct {
	count  int
	last   time.Time
	result string
}

// Deduplicator detects exact and semantically similar repeated tool calls and
// enforces per-tool rate limits. Exact and semantic state is per step; rate
// counters live for the whole task.
type Deduplicator struct {
	Window             time.Duration
	MaxDuplicates      int
	MaxSemanticSimilar int
	RateLimits         map[string]int
	DefaultRateLimit   int

	calls    map[string]*callRecord
	semantic map[string][]time.Time
	rate     map[string][]time.Time
	now      func() time.Time
}

// NewDeduplicator returns a deduplicator with the default thresholds.
func NewDeduplicator() *Deduplicator {
	limits := make(map[string]int, len(defaultRateLimits))
	for k, v := range defaultRateLimits {
		limits[k] = v
	}
	return &Deduplicator{
		Window:             dedupWindow,
		MaxDuplicates:      defaultMaxDuplicates,
		MaxSemanticSimilar: defaultMaxSemantic,
		RateLimits:         limits,
		DefaultRateLimit:   defaultToolRateLimit,
		calls:              make(map[string]*callRecord),
		semantic:           make(map[string][]time.Time),
		rate:               make(map[string][]time.Time),
		now:                time.Now,
	}
}

// IsExempt reports whether tool bypasses deduplication: its output depends on
// state the arguments do not capture.
func IsExempt(tool Tool) bool {
	name := strings.ToLower(tool.Name)
	return tool.HasTag(TagStateful) ||
		strings.HasPrefix(name, "browser_") ||
		strings.Contains(name, "screenshot")
}

// IsIdempotent reports whether repeats of tool may be answered from cache.
func IsIdempotent(tool Tool) bool {
	if tool.HasTag(TagIdempotent) {
		return true
	}
	name := strings.ToLower(tool.Name)
	for _, p := range []string{"read_", "list_", "get_", "search", "web_search", "find_"} {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// Check decides whether a call may run. It does not record the call.
func (d *Deduplicator) Check(tool Tool, args map[string]any) DedupVerdict {
	if IsExempt(tool) {
		return DedupVerdict{}
	}
	now := d.now()

	limit := d.DefaultRateLimit
	if l, ok := d.RateLimits[tool.Name]; ok {
		limit = l
	}
	d.rate[tool.Name] = d.prune(d.rate[tool.Name], now)
	if limit > 0 && len(d.rate[tool.Name]) >= limit {
		return DedupVerdict{
			Blocked: true,
			Kind:    DedupRateLimited,
			Reason:  fmt.Sprintf("rate limit reached for %s: %d calls in the last %s", tool.Name, len(d.rate[tool.Name]), d.Window),
		}
	}

	key := callKey(tool.Name, args)
	if rec, ok := d.calls[key]; ok && now.Sub(rec.last) < d.Window && rec.count >= d.MaxDuplicates {
		if IsIdempotent(tool) {
			return DedupVerdict{
				Blocked: true,
				Kind:    DedupDuplicateCached,
				Reason:  fmt.Sprintf("identical %s call repeated %d times; returning the previous result", tool.Name, rec.count),
				Result:  rec.result,
			}
		}
		return DedupVerdict{
			Blocked: true,
			Kind:    DedupDuplicate,
			Reason:  fmt.Sprintf("identical %s call already executed %d times in the last %s; repeating it will not change the outcome", tool.Name, rec.count, d.Window),
		}
	}

	if sig := SemanticSignature(tool.Name, args); sig != "" {
		recent := d.prune(d.semantic[sig], now)
		d.semantic[sig] = recent
		if len(recent) >= d.MaxSemanticSimilar {
			return DedupVerdict{
				Blocked: true,
				Kind:    DedupSemantic,
				Reason:  fmt.Sprintf("%s has been called with near-identical input %d times; this looks like a retry loop, change strategy", tool.Name, len(recent)),
			}
		}
	}
	return DedupVerdict{}
}

// Record registers a settled call and its result.
func (d *Deduplicator) Record(tool Tool, args map[string]any, result string) {
	if IsExempt(tool) {
		return
	}
	now := d.now()
	d.rate[tool.Name] = append(d.prune(d.rate[tool.Name], now), now)

	key := callKey(tool.Name, args)
	rec, ok := d.calls[key]
	if !ok || now.Sub(rec.last) >= d.Window {
		rec = &callRecord{}
		d.calls[key] = rec
	}
	rec.count++
	rec.last = now
	rec.result = result

	if sig := SemanticSignature(tool.Name, args); sig != "" {
		d.semantic[sig] = append(d.prune(d.semantic[sig], now), now)
	}
}

// ResetStep clears exact and semantic state; rate counters survive.
func (d *Deduplicator) ResetStep() {
	d.calls = make(map[string]*callRecord)
	d.semantic = make(map[string][]time.Time)
}

// Reset clears everything, including rate counters.
func (d *Deduplicator) Reset() {
	d.ResetStep()
	d.rate = make(map[string][]time.Time)
}

func (d *Deduplicator) prune(ts []time.Time, now time.Time) []time.Time {
	kept := ts[:0]
	for _, t := range ts {
		if now.Sub(t) < d.Window {
			kept = append(kept, t)
		}
	}
	return kept
}

// callKey is tool name plus canonical JSON of the trimmed arguments.
// encoding/json sorts map keys, so equal inputs give equal keys.
func callKey(tool string, args map[string]any) string {
	b, err := json.Marshal(normalizeValue(args))
	if err != nil {
		return tool + "\x00" + fmt.Sprint(args)
	}
	return tool + "\x00" + string(b)
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = normalizeValue(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = normalizeValue(val)
		}
		return out
	default:
		return v
	}
}

var (
	versionSuffix = regexp.MustCompile(`(?i)([_\-\s]*(v\d+|\d+|final|new|copy|updated|fixed|revised|backup|draft|old)|\s*\(\d+\))+$`)
	siteModifier  = regexp.MustCompile(`(?i)\b-?site:\S+`)
	quoteChars    = strings.NewReplacer(`"`, "", `'`, "", "“", "", "”", "")
)

// SemanticSignature returns the near-duplicate signature for tool families
// prone to retry loops (file/document creation, copy, web search), or "".
func SemanticSignature(tool string, args map[string]any) string {
	name := strings.ToLower(tool)
	switch {
	case strings.Contains(name, "search"):
		q := firstString(args, "query", "q", "search")
		if q == "" {
			return ""
		}
		q = siteModifier.ReplaceAllString(q, " ")
		q = quoteChars.Replace(q)
		return "search:" + strings.Join(strings.Fields(strings.ToLower(q)), " ")
	case strings.Contains(name, "copy"):
		src := firstString(args, "source", "src", "from", "path")
		if src == "" {
			return ""
		}
		return "copy:" + normalizeFileStem(src)
	case strings.Contains(name, "create") || strings.Contains(name, "generate") || strings.Contains(name, "document"):
		p := firstString(args, "path", "filename", "file_path", "output", "name")
		if p == "" {
			return ""
		}
		return "create:" + normalizeFileStem(p)
	}
	return ""
}

// normalizeFileStem lowercases the base name and strips extension and
// version/suffix markers: "Report_v2 (1).docx" -> "report".
func normalizeFileStem(p string) string {
	base := filepath.Base(strings.TrimSpace(p))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.ToLower(base)
	stripped := versionSuffix.ReplaceAllString(base, "")
	if stripped == "" {
		return base
	}
	return stripped
}

func firstString(args map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := args[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}
