package telemetry

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func readTraces(t *testing.T, path string) []Trace {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	var out []Trace
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var tr Trace
		if err := json.Unmarshal(sc.Bytes(), &tr); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		out = append(out, tr)
	}
	return out
}

func TestTraceWrittenOnClose(t *testing.T) {
	dir := t.TempDir()
	tel, err := New(dir, Options{SampleRate: 1, FlushInterval: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	tr := tel.Track("chat.send_text").Attr("chat", "c1")
	tr.Mark("create")
	tr.Fail(errors.New("boom"))
	tr.Finish()
	tr.Finish()
	tel.Close()

	got := readTraces(t, filepath.Join(dir, "chat.send_text.jsonl"))
	if len(got) != 1 {
		t.Fatalf("want 1 trace, got %d", len(got))
	}
	if got[0].Attrs["chat"] != "c1" || got[0].Err != "boom" {
		t.Fatalf("unexpected trace %+v", got[0])
	}
	if len(got[0].Steps) == 0 || got[0].Steps[0].Name != "create" {
		t.Fatalf("missing step: %+v", got[0].Steps)
	}
}

func TestSamplingSkipsFastTraces(t *testing.T) {
	dir := t.TempDir()
	tel, err := New(dir, Options{SampleRate: 0, FlushInterval: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	tel.Track("fast").Finish()
	tel.Close()
	if _, err := os.Stat(filepath.Join(dir, "fast.jsonl")); !os.IsNotExist(err) {
		t.Fatalf("expected no trace file, stat err = %v", err)
	}
}

func TestSlowTracesAlwaysKept(t *testing.T) {
	dir := t.TempDir()
	tel, err := New(dir, Options{SampleRate: 0, SlowThreshold: time.Nanosecond, FlushInterval: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	tr := tel.Track("slow")
	time.Sleep(time.Millisecond)
	tr.Finish()
	tel.Close()
	if got := readTraces(t, filepath.Join(dir, "slow.jsonl")); len(got) != 1 {
		t.Fatalf("want 1 slow trace, got %d", len(got))
	}
}

func TestGlobalNoopBeforeInit(t *testing.T) {
	Close()
	tr := Track("anything")
	tr.Mark("x")
	tr.Attr("k", "v")
	tr.Finish()
}
