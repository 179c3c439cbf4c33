package tasks

import (
	"log/slog"
	"regexp"
	"strings"
	"time"
)

// Task keyword markers, first match wins. Latin markers match
// case-insensitively, logographic markers match as exact substrings. Each
// marker must be followed by a colon (half or full width) or whitespace.
var keywordPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)todo[:：\s]`),
	regexp.MustCompile(`やること[:：\s]`),
	regexp.MustCompile(`タスク[:：\s]`),
}

var (
	todayPattern    = regexp.MustCompile(`(?i)今日|today`)
	tomorrowPattern = regexp.MustCompile(`(?i)明日|tomorrow`)
	numericPattern  = regexp.MustCompile(`([0-9]{1,2})[/-]([0-9]{1,2})`)

	spaceRuns = regexp.MustCompile(`[ \t　]{2,}`)
)

// Extracted is a task candidate pulled out of free text.
type Extracted struct {
	Title string
	DueAt *time.Time
}

// Extractor classifies free text as task-bearing and extracts a title and an
// optional due date. It is pure: "now" is injected so results are
// deterministic for a fixed reference time.
type Extractor struct {
	loc *time.Location
	now func() time.Time
	log *slog.Logger
}

func NewExtractor(loc *time.Location, now func() time.Time, log *slog.Logger) *Extractor {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{loc: loc, now: now, log: log}
}

// Extract returns the task found in text, or false when the text carries no
// task marker or the marker has an empty remainder. A titleless task is never
// produced.
func (e *Extractor) Extract(text string) (Extracted, bool) {
	candidate := ""
	matched := false
	for _, pattern := range keywordPatterns {
		loc := pattern.FindStringIndex(text)
		if loc == nil {
			continue
		}
		candidate = strings.TrimSpace(text[:loc[0]] + text[loc[1]:])
		matched = true
		break
	}
	if !matched || candidate == "" {
		return Extracted{}, false
	}

	due, phrase := ParseDueDate(candidate, e.now().In(e.loc))
	title := candidate
	if phrase != "" {
		title = stripDuePhrase(candidate, phrase)
		if title == "" {
			// Stripping must never empty the title.
			title = candidate
		}
	}

	e.log.Info("task_extracted", "title", title, "has_due", due != nil)
	return Extracted{Title: title, DueAt: due}, true
}

// ParseDueDate scans text for a due-date phrase relative to now. It returns
// the due timestamp (end of the matched local day) and the matched phrase,
// or (nil, "") when no phrase matches. For a fixed now the result is stable.
func ParseDueDate(text string, now time.Time) (*time.Time, string) {
	if phrase := todayPattern.FindString(text); phrase != "" {
		due := endOfDay(now)
		return &due, phrase
	}
	if phrase := tomorrowPattern.FindString(text); phrase != "" {
		due := endOfDay(now.AddDate(0, 0, 1))
		return &due, phrase
	}
	if m := numericPattern.FindStringSubmatch(text); m != nil {
		month := atoi(m[1])
		day := atoi(m[2])
		if month < 1 || month > 12 || day < 1 || day > 31 {
			return nil, ""
		}
		due := time.Date(now.Year(), time.Month(month), day, 0, 0, 0, 0, now.Location())
		// Reject normalized overflow like 2/31.
		if int(due.Month()) != month || due.Day() != day {
			return nil, ""
		}
		due = endOfDay(due)
		// A date already past this year means the next occurrence.
		if due.Before(now) {
			due = endOfDay(time.Date(now.Year()+1, time.Month(month), day, 0, 0, 0, 0, now.Location()))
		}
		return &due, m[0]
	}
	return nil, ""
}

// stripDuePhrase removes the matched date phrase from the candidate title,
// together with a leading "by"/"on" particle or a trailing まで/までに.
func stripDuePhrase(candidate, phrase string) string {
	pattern := regexp.MustCompile(`(?i)((by|on)[ \t　]+)?` + regexp.QuoteMeta(phrase) + `(までに|まで)?`)
	loc := pattern.FindStringIndex(candidate)
	if loc == nil {
		return strings.TrimSpace(candidate)
	}
	out := candidate[:loc[0]] + candidate[loc[1]:]
	out = spaceRuns.ReplaceAllString(out, " ")
	return strings.Trim(out, " \t　")
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(999*time.Millisecond), t.Location())
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return -1
		}
		n = n*10 + int(r-'0')
	}
	return n
}
