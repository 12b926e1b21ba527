package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"voicenotes/internal/logs"
)

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voicenotes.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func appendLog(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("append log: %v", err)
	}
}

func TestTailLastLines(t *testing.T) {
	path := writeLog(t, "a\nb\nc\n")

	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if strings.Join(result.Lines, ",") != "b,c" || result.Offset != 6 {
		t.Fatalf("unexpected result %+v", result)
	}

	all, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: -1, Limit: 10})
	if err != nil || strings.Join(all.Lines, ",") != "a,b,c" {
		t.Fatalf("expected every line, got %+v, %v", all, err)
	}
}

func TestTailAcrossBlocks(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 5000; i++ {
		b.WriteString(strings.Repeat("x", 20))
		b.WriteString("\n")
	}
	b.WriteString("second to last\nlast\n")
	path := writeLog(t, b.String())

	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: -1, Limit: 3})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(result.Lines) != 3 || result.Lines[1] != "second to last" || result.Lines[2] != "last" {
		t.Fatalf("unexpected lines %#v", result.Lines)
	}
}

func TestTailHoldsBackPartialLine(t *testing.T) {
	path := writeLog(t, "done\nhalf")

	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: -1, Limit: 5})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if strings.Join(result.Lines, ",") != "done" || result.Offset != 5 {
		t.Fatalf("partial line should wait, got %+v", result)
	}

	appendLog(t, path, " written\n")
	next, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: result.Offset})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(next.Lines) != 1 || next.Lines[0] != "half written" {
		t.Fatalf("expected the completed line, got %#v", next.Lines)
	}
}

func TestTailRestartsAfterTruncation(t *testing.T) {
	path := writeLog(t, "fresh\n")
	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: 500})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(result.Lines) != 1 || result.Lines[0] != "fresh" {
		t.Fatalf("expected reread from start, got %#v", result.Lines)
	}
}

func TestTailMissingFile(t *testing.T) {
	result, err := logs.Tail(context.Background(), filepath.Join(t.TempDir(), "none.log"), logs.TailOptions{Offset: -1, Limit: 5})
	if err != nil || len(result.Lines) != 0 || result.Offset != 0 {
		t.Fatalf("expected empty result, got %+v, %v", result, err)
	}
}

func TestTailFilter(t *testing.T) {
	path := writeLog(t, strings.Join([]string{
		`{"level":"info","msg":"claimed","task_id":"t1","transcription_id":"20250101080000"}`,
		`{"level":"warn","msg":"retrying","task_id":"t1","transcription_id":"20250101080000"}`,
		`{"level":"error","msg":"failed","task_id":"t2","transcription_id":"20250101090000"}`,
		`plain text line`,
	}, "\n")+"\n")

	tests := []struct {
		name   string
		filter logs.Filter
		want   int
	}{
		{"none", logs.Filter{}, 4},
		{"warn and above", logs.Filter{MinLevel: "warn"}, 3},
		{"task", logs.Filter{TaskID: "t1"}, 3},
		{"note and level", logs.Filter{TranscriptionID: "20250101080000", MinLevel: "warn"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: -1, Limit: 10, Filter: tt.filter})
			if err != nil {
				t.Fatalf("Tail: %v", err)
			}
			if len(result.Lines) != tt.want {
				t.Fatalf("got %d lines %#v, want %d", len(result.Lines), result.Lines, tt.want)
			}
		})
	}
}

func TestTailFollowWaits(t *testing.T) {
	path := writeLog(t, "start\n")
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	initial, err := logs.Tail(ctx, path, logs.TailOptions{Offset: -1, Limit: 1})
	if err != nil || len(initial.Lines) != 1 {
		t.Fatalf("initial tail: %+v, %v", initial, err)
	}

	done := make(chan logs.TailResult, 1)
	go func() {
		res, err := logs.Tail(ctx, path, logs.TailOptions{Offset: initial.Offset, Follow: true, Wait: 5 * time.Second})
		if err != nil {
			t.Errorf("follow tail: %v", err)
		}
		done <- res
	}()

	time.Sleep(200 * time.Millisecond)
	appendLog(t, path, "later\n")

	select {
	case res := <-done:
		if len(res.Lines) != 1 || res.Lines[0] != "later" {
			t.Fatalf("unexpected follow lines %#v", res.Lines)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("tail follow did not return")
	}
}

func TestTailFollowTimesOut(t *testing.T) {
	path := writeLog(t, "only\n")
	start := time.Now()
	res, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: 5, Follow: true, Wait: 300 * time.Millisecond})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(res.Lines) != 0 || res.Offset != 5 {
		t.Fatalf("unexpected result %+v", res)
	}
	if time.Since(start) < 250*time.Millisecond {
		t.Fatal("follow returned before the wait elapsed")
	}
}
