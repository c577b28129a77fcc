package todo

import (
	"fmt"
	"regexp"
	"strings"
)

// Delimiters for the todo block embedded inside a larger markdown document.
// Content outside the delimited section is preserved verbatim on save.
const (
	BlockBegin = "<!-- todos:begin -->"
	BlockEnd   = "<!-- todos:end -->"
)

var (
	taskLineRe    = regexp.MustCompile(`^- \[([ x-])\] (.*)$`)
	subtaskLineRe = regexp.MustCompile(`^  - \[([ x])\] (.*)$`)
	idCommentRe   = regexp.MustCompile(`\s*<!-- id:([^ >]+) -->\s*$`)
)

func statusMarker(s Status) string {
	switch s {
	case StatusInProgress:
		return "-"
	case StatusCompleted:
		return "x"
	default:
		return " "
	}
}

func markerStatus(marker string) Status {
	switch marker {
	case "-":
		return StatusInProgress
	case "x":
		return StatusCompleted
	default:
		return StatusPending
	}
}

func priorityMarker(p Priority) string {
	switch p {
	case PriorityHigh:
		return "!!!"
	case PriorityLow:
		return "!"
	default:
		return "!!"
	}
}

func markerPriority(marker string) Priority {
	switch marker {
	case "!!!":
		return PriorityHigh
	case "!":
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// RenderMarkdown renders the list as a checkbox-style markdown block: one
// line per task keyed by status, a trailing priority indicator, and nested
// indented lines for subtasks, notes and details. Task ids travel in
// trailing HTML comments so a render/parse round trip is lossless.
func RenderMarkdown(list TaskList) string {
	var b strings.Builder
	title := strings.TrimSpace(list.Title)
	if title == "" {
		title = DefaultTitle
	}
	fmt.Fprintf(&b, "# %s\n", title)
	if len(list.Tasks) > 0 {
		b.WriteString("\n")
	}
	for _, t := range list.Tasks {
		fmt.Fprintf(&b, "- [%s] %s %s <!-- id:%s -->\n", statusMarker(t.Status), t.Content, priorityMarker(t.Priority), t.ID)
		for _, sub := range t.Subtasks {
			fmt.Fprintf(&b, "  - [%s] %s <!-- id:%s -->\n", statusMarker(sub.Status), sub.Content, sub.ID)
		}
		if t.Note != "" {
			for _, line := range strings.Split(t.Note, "\n") {
				fmt.Fprintf(&b, "  > %s\n", line)
			}
		}
		if t.Details != "" {
			for _, line := range strings.Split(t.Details, "\n") {
				fmt.Fprintf(&b, "  %s\n", escapeDetailLine(line))
			}
		}
	}
	return b.String()
}

// ParseMarkdown is the inverse of RenderMarkdown. Lines that do not match the
// expected shapes are skipped; a block with no recognizable content yields an
// empty list with the default title. Tasks without an id comment (external
// hand edits) receive stable position-derived ids.
func ParseMarkdown(block string) TaskList {
	list := NewTaskList()
	var current *Task
	for _, raw := range strings.Split(block, "\n") {
		line := strings.TrimRight(raw, "\r")
		if title, ok := strings.CutPrefix(line, "# "); ok {
			if title = strings.TrimSpace(title); title != "" {
				list.Title = title
			}
			continue
		}
		if m := subtaskLineRe.FindStringSubmatch(line); m != nil && current != nil {
			id, text := splitIDComment(m[2])
			if id == "" {
				id = fmt.Sprintf("%s-sub-%d", current.ID, len(current.Subtasks)+1)
			}
			current.Subtasks = append(current.Subtasks, Subtask{
				ID:      id,
				Content: text,
				Status:  markerStatus(m[1]),
			})
			continue
		}
		if m := taskLineRe.FindStringSubmatch(line); m != nil {
			if current != nil {
				list.Tasks = append(list.Tasks, *current)
			}
			id, text := splitIDComment(m[2])
			text, priority := splitPriority(text)
			if id == "" {
				id = fmt.Sprintf("task-%d", len(list.Tasks)+1)
			}
			current = &Task{
				ID:       id,
				Content:  text,
				Status:   markerStatus(m[1]),
				Priority: priority,
			}
			continue
		}
		if note, ok := strings.CutPrefix(line, "  > "); ok && current != nil {
			if current.Note != "" {
				current.Note += "\n"
			}
			current.Note += note
			continue
		}
		if detail, ok := strings.CutPrefix(line, "  "); ok && current != nil && strings.TrimSpace(detail) != "" {
			if current.Details != "" {
				current.Details += "\n"
			}
			current.Details += unescapeDetailLine(detail)
			continue
		}
	}
	if current != nil {
		list.Tasks = append(list.Tasks, *current)
	}
	return list
}

// escapeDetailLine guards detail lines whose leading characters would
// otherwise re-parse as a note quote or a checkbox line.
func escapeDetailLine(line string) string {
	if strings.HasPrefix(line, `\`) || strings.HasPrefix(line, "> ") || strings.HasPrefix(line, "- ") {
		return `\` + line
	}
	return line
}

func unescapeDetailLine(line string) string {
	return strings.TrimPrefix(line, `\`)
}

func splitIDComment(text string) (id, rest string) {
	if m := idCommentRe.FindStringSubmatch(text); m != nil {
		return m[1], strings.TrimSpace(idCommentRe.ReplaceAllString(text, ""))
	}
	return "", strings.TrimSpace(text)
}

func splitPriority(text string) (string, Priority) {
	for _, marker := range []string{"!!!", "!!", "!"} {
		if rest, ok := strings.CutSuffix(text, " "+marker); ok {
			return strings.TrimSpace(rest), markerPriority(marker)
		}
	}
	return strings.TrimSpace(text), PriorityMedium
}

// RenderDocument embeds the rendered list between BlockBegin/BlockEnd inside
// document, replacing an existing block and preserving all surrounding
// content. Documents without a block get one appended.
func RenderDocument(document string, list TaskList) string {
	block := BlockBegin + "\n" + RenderMarkdown(list) + BlockEnd
	begin := strings.Index(document, BlockBegin)
	end := strings.Index(document, BlockEnd)
	if begin >= 0 && end >= 0 && end >= begin {
		return document[:begin] + block + document[end+len(BlockEnd):]
	}
	if document == "" {
		return block + "\n"
	}
	if !strings.HasSuffix(document, "\n") {
		document += "\n"
	}
	return document + "\n" + block + "\n"
}

// ExtractDocument parses the delimited block out of document. A missing or
// malformed block degrades to an empty list with the default title; the
// second return reports whether a block was present.
func ExtractDocument(document string) (TaskList, bool) {
	begin := strings.Index(document, BlockBegin)
	end := strings.Index(document, BlockEnd)
	if begin < 0 || end < 0 || end < begin {
		return NewTaskList(), false
	}
	inner := document[begin+len(BlockBegin) : end]
	return ParseMarkdown(inner), true
}
