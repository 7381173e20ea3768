package tracker

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// fieldSep separates the id, notes, and completion-date fields in the
// logbook script output. Notes newlines are escaped by the script so each
// record stays on one line.
const fieldSep = "|||"

// Compile-time interface check
var _ Tracker = (*Things)(nil)

// Things drives Things 3 through osascript. Every call runs one AppleScript
// under a bounded timeout; a non-zero exit means the operation was not
// confirmed.
type Things struct {
	project string
	timeout time.Duration
	loc     *time.Location

	// run executes a script and returns its stdout. Overridable in tests.
	run func(ctx context.Context, script string) (string, error)
}

// NewThings creates a Things client scoped to the named project. Completion
// dates are interpreted in the local time zone, matching how the host app
// reports them.
func NewThings(project string, timeout time.Duration) *Things {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Things{
		project: project,
		timeout: timeout,
		loc:     time.Local,
		run:     runOsascript,
	}
}

func runOsascript(ctx context.Context, script string) (string, error) {
	cmd := exec.CommandContext(ctx, "osascript", "-e", script)
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok && len(ee.Stderr) > 0 {
			return "", fmt.Errorf("osascript: %s", strings.TrimSpace(string(ee.Stderr)))
		}
		return "", fmt.Errorf("osascript: %w", err)
	}
	return string(out), nil
}

// escape quotes a string for embedding in an AppleScript double-quoted
// literal.
func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

func (t *Things) FindOpenTask(ctx context.Context, token string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	script := fmt.Sprintf(`
tell application "Things3"
  tell project "%s"
    return exists (to dos whose notes contains "%s" and status is open)
  end tell
end tell
`, escape(t.project), escape(token))

	out, err := t.run(ctx, script)
	if err != nil {
		return false, fmt.Errorf("checking for open task: %w", err)
	}
	return strings.Contains(strings.ToLower(out), "true"), nil
}

func (t *Things) Create(ctx context.Context, task Task) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	script := fmt.Sprintf(`
tell application "Things3"
  tell project "%s"
    set newTodo to make new to do
    set name of newTodo to "%s"
    set notes of newTodo to "%s"
    set due date of newTodo to (current date)
  end tell
end tell
`, escape(t.project), escape(task.Title), escape(task.Notes))

	if _, err := t.run(ctx, script); err != nil {
		return fmt.Errorf("creating task: %w", err)
	}
	return nil
}

func (t *Things) ListCompleted(ctx context.Context, limit int) ([]CompletedTask, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	// The script emits one "id|||notes|||completion date" line per logbook
	// entry that carries a page reference, escaping newlines inside notes so
	// records stay line-oriented.
	script := fmt.Sprintf(`
on replaceText(find, repl, theText)
  set AppleScript's text item delimiters to find
  set parts to text items of theText
  set AppleScript's text item delimiters to repl
  set theText to parts as text
  set AppleScript's text item delimiters to ""
  return theText
end replaceText

tell application "Things3"
  set lb to to dos of list "Logbook"
  set outText to ""
  set n to count of lb
  set maxIndex to %d
  if maxIndex > n then set maxIndex to n

  repeat with i from 1 to maxIndex
    set t to item i of lb
    try
      set tNotes to (notes of t)
      if tNotes contains "notion_id:" then
        set tId to (id of t) as text
        set tComp to (completion date of t) as text
        set tNotes to my replaceText((ASCII character 10), "\\n", tNotes)
        set tNotes to my replaceText((ASCII character 13), "", tNotes)
        set outText to outText & tId & "%s" & tNotes & "%s" & tComp & linefeed
      end if
    end try
  end repeat

  return outText
end tell
`, limit, fieldSep, fieldSep)

	out, err := t.run(ctx, script)
	if err != nil {
		return nil, fmt.Errorf("listing completed tasks: %w", err)
	}
	return parseLogbook(out, t.loc), nil
}

func (t *Things) UpdateNotes(ctx context.Context, taskID, notes string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	script := fmt.Sprintf(`
tell application "Things3"
  set notes of to do id "%s" to "%s"
end tell
`, escape(taskID), escape(notes))

	if _, err := t.run(ctx, script); err != nil {
		return fmt.Errorf("updating notes for task %s: %w", taskID, err)
	}
	return nil
}

// parseLogbook turns the script's line-oriented output into CompletedTasks.
// Malformed lines are dropped; a completion date that does not parse leaves
// CompletedAt zero for the caller to skip.
func parseLogbook(raw string, loc *time.Location) []CompletedTask {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var items []CompletedTask
	for _, line := range strings.Split(raw, "\n") {
		parts := strings.SplitN(line, fieldSep, 3)
		if len(parts) != 3 {
			continue
		}
		id := strings.TrimSpace(parts[0])
		if id == "" {
			continue
		}
		notes := strings.ReplaceAll(parts[1], `\n`, "\n")
		completed, _ := parseCompletionDate(strings.TrimSpace(parts[2]), loc)
		items = append(items, CompletedTask{
			ID:          id,
			Notes:       notes,
			CompletedAt: completed,
		})
	}
	return items
}

// completionLayouts covers the date text forms the host app emits,
// locale-dependent but always in local time.
var completionLayouts = []string{
	"Monday, January 2, 2006 at 3:04:05 PM",
	"Monday, January 2, 2006 at 15:04:05",
	"January 2, 2006 at 3:04:05 PM",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

func parseCompletionDate(s string, loc *time.Location) (time.Time, bool) {
	// Some locales emit narrow no-break spaces around the meridiem.
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == ' ' {
			return ' '
		}
		return r
	}, s)

	for _, layout := range completionLayouts {
		if ts, err := time.ParseInLocation(layout, s, loc); err == nil {
			return ts, true
		}
	}
	// Epoch seconds, in case the script is changed to emit raw numbers.
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0).In(loc), true
	}
	return time.Time{}, false
}
