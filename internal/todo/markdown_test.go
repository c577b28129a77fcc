package todo

import (
	"strings"
	"testing"
)

func TestRenderParseRoundTrip(t *testing.T) {
	t.Parallel()
	list := TaskList{
		Title: "Release 1.2",
		Tasks: []Task{
			{
				ID: "tag", Content: "Tag the release", Status: StatusCompleted, Priority: PriorityHigh,
				Note: "use annotated tags",
			},
			{
				ID: "ship", Content: "Push artifacts", Status: StatusInProgress, Priority: PriorityMedium,
				Subtasks: []Subtask{
					{ID: "ship-docker", Content: "docker images", Status: StatusCompleted},
					{ID: "ship-brew", Content: "homebrew formula", Status: StatusPending},
				},
				Details: "CI publishes on tag\nretry on 5xx",
			},
			{ID: "announce", Content: "Write the announcement", Status: StatusPending, Priority: PriorityLow},
		},
	}
	parsed := ParseMarkdown(RenderMarkdown(list))
	if !parsed.Equal(list) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", parsed, list)
	}
}

func TestRoundTripDetailsResemblingOtherLines(t *testing.T) {
	t.Parallel()
	list := TaskList{
		Title: "Edge Cases",
		Tasks: []Task{
			{
				ID: "a", Content: "keep details intact", Status: StatusPending, Priority: PriorityMedium,
				Details: "> quoted context\n- [ ] not a subtask\n\\leading backslash\nplain line",
			},
		},
	}
	parsed := ParseMarkdown(RenderMarkdown(list))
	if !parsed.Equal(list) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", parsed, list)
	}
	if len(parsed.Tasks) != 1 || len(parsed.Tasks[0].Subtasks) != 0 || parsed.Tasks[0].Note != "" {
		t.Fatalf("details leaked into other fields: %+v", parsed.Tasks[0])
	}
}

func TestRenderMarkdownMarkers(t *testing.T) {
	t.Parallel()
	out := RenderMarkdown(TaskList{Title: "T", Tasks: []Task{
		{ID: "a", Content: "low", Status: StatusPending, Priority: PriorityLow},
		{ID: "b", Content: "mid", Status: StatusInProgress, Priority: PriorityMedium},
		{ID: "c", Content: "high", Status: StatusCompleted, Priority: PriorityHigh},
	}})
	for _, want := range []string{
		"- [ ] low ! <!-- id:a -->",
		"- [-] mid !! <!-- id:b -->",
		"- [x] high !!! <!-- id:c -->",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestParseMarkdownHandEditedWithoutIDs(t *testing.T) {
	t.Parallel()
	block := "# Chores\n\n- [ ] water plants\n- [x] take out trash !!!\n"
	list := ParseMarkdown(block)
	if list.Title != "Chores" || len(list.Tasks) != 2 {
		t.Fatalf("parsed %+v", list)
	}
	if list.Tasks[0].ID != "task-1" || list.Tasks[1].ID != "task-2" {
		t.Fatalf("expected positional ids, got %q %q", list.Tasks[0].ID, list.Tasks[1].ID)
	}
	if list.Tasks[0].Priority != PriorityMedium {
		t.Fatalf("unmarked priority = %q, want medium", list.Tasks[0].Priority)
	}
	if list.Tasks[1].Status != StatusCompleted || list.Tasks[1].Priority != PriorityHigh {
		t.Fatalf("second task = %+v", list.Tasks[1])
	}
}

func TestParseMarkdownSkipsUnrecognizedLines(t *testing.T) {
	t.Parallel()
	block := "random prose\n# Title\nmore prose\n- [ ] real task !! <!-- id:x -->\n* not a task\n"
	list := ParseMarkdown(block)
	if len(list.Tasks) != 1 || list.Tasks[0].ID != "x" {
		t.Fatalf("parsed %+v", list)
	}
}

func TestParseMarkdownEmptyBlock(t *testing.T) {
	t.Parallel()
	list := ParseMarkdown("")
	if !list.IsEmpty() || list.Title != DefaultTitle {
		t.Fatalf("parsed %+v", list)
	}
}

func TestRenderDocumentPreservesSurroundingContent(t *testing.T) {
	t.Parallel()
	doc := "# Project notes\n\nsome prose above\n\n" + BlockBegin + "\nstale\n" + BlockEnd + "\n\nprose below\n"
	list := TaskList{Title: "Plan", Tasks: []Task{{ID: "a", Content: "task", Status: StatusPending, Priority: PriorityMedium}}}
	out := RenderDocument(doc, list)
	if !strings.Contains(out, "some prose above") || !strings.Contains(out, "prose below") {
		t.Fatalf("surrounding content lost:\n%s", out)
	}
	if strings.Contains(out, "stale") {
		t.Fatalf("old block content survived:\n%s", out)
	}
	got, ok := ExtractDocument(out)
	if !ok || !got.Equal(list) {
		t.Fatalf("extract after render = %+v ok=%v", got, ok)
	}
}

func TestRenderDocumentAppendsBlockWhenMissing(t *testing.T) {
	t.Parallel()
	out := RenderDocument("existing notes", TaskList{Title: "Plan"})
	if !strings.HasPrefix(out, "existing notes\n") {
		t.Fatalf("existing content not preserved:\n%s", out)
	}
	if _, ok := ExtractDocument(out); !ok {
		t.Fatalf("no block appended:\n%s", out)
	}
}

func TestExtractDocumentDegradesWithoutBlock(t *testing.T) {
	t.Parallel()
	list, ok := ExtractDocument("just a regular file")
	if ok || !list.IsEmpty() || list.Title != DefaultTitle {
		t.Fatalf("extract = %+v ok=%v", list, ok)
	}
}
