package worker

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ckirkland/conductor/pkg/models"
)

// writeScript writes an executable shell script acting as a fake worker agent.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-worker.sh")
	script := "#!/bin/sh\n" + body
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func collectEntries(p *Process) []models.OutputEntry {
	var entries []models.OutputEntry
	for e := range p.Entries() {
		if e.Err == nil {
			entries = append(entries, e.Record)
		}
	}
	return entries
}

func TestWorkerSuccess(t *testing.T) {
	script := writeScript(t, `
echo '{"type":"assistant","text":"starting"}'
echo '{"type":"tool","tool":"read","input":{"path":"main.go"}}'
echo '{"type":"result","text":"done"}'
exit 0
`)

	p, err := Start(context.Background(), Config{Command: script}, "payload", "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	entries := collectEntries(p)
	code := p.Wait()

	if code != 0 {
		t.Errorf("expected exit code 0, got %d", code)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d: %v", len(entries), entries)
	}
	if entries[1].Kind != models.OutputTool || entries[1].Text != "Reading main.go" {
		t.Errorf("unexpected tool entry: %+v", entries[1])
	}
	if entries[2].Kind != models.OutputResult {
		t.Errorf("expected result entry last, got %+v", entries[2])
	}
}

func TestWorkerSkipsMalformedLines(t *testing.T) {
	script := writeScript(t, `
echo 'garbage not json'
echo '{"type":"assistant","text":"still here"}'
exit 0
`)

	p, err := Start(context.Background(), Config{Command: script}, "payload", "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	entries := collectEntries(p)
	p.Wait()

	if len(entries) != 1 {
		t.Fatalf("expected 1 entry after skipping garbage, got %d", len(entries))
	}
	if entries[0].Text != "still here" {
		t.Errorf("unexpected entry %+v", entries[0])
	}
}

func TestWorkerNonZeroExit(t *testing.T) {
	script := writeScript(t, `
echo '{"type":"assistant","text":"trying"}'
echo 'something went wrong' >&2
exit 3
`)

	p, err := Start(context.Background(), Config{Command: script}, "payload", "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	collectEntries(p)
	code := p.Wait()

	if code != 3 {
		t.Errorf("expected exit code 3, got %d", code)
	}
	if p.StderrTail() != "something went wrong" {
		t.Errorf("unexpected stderr tail %q", p.StderrTail())
	}
}

func TestWorkerSpawnFailure(t *testing.T) {
	_, err := Start(context.Background(), Config{Command: "/nonexistent/worker-agent"}, "payload", "")
	if err == nil {
		t.Fatal("expected spawn failure for missing executable")
	}
}

func TestWorkerStop(t *testing.T) {
	script := writeScript(t, `
echo '{"type":"assistant","text":"looping"}'
sleep 30
exit 0
`)

	p, err := Start(context.Background(), Config{Command: script}, "payload", "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// Give the process a moment to start before signalling.
	time.Sleep(100 * time.Millisecond)

	if err := p.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !p.Stopped() {
		t.Error("expected Stopped()=true after Stop")
	}

	done := make(chan int, 1)
	go func() {
		collectEntries(p)
		done <- p.Wait()
	}()

	select {
	case code := <-done:
		if code == 0 {
			t.Error("expected non-zero exit after termination signal")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit after Stop")
	}
}

func TestWorkerStderrCompleteAfterWait(t *testing.T) {
	// Every stderr line written right up to exit must survive; Wait joins
	// the stderr reader before reaping the process and closing the pipes.
	script := writeScript(t, `
i=1
while [ $i -le 40 ]; do
  echo "diagnostic line $i" >&2
  i=$((i + 1))
done
exit 1
`)

	p, err := Start(context.Background(), Config{Command: script}, "payload", "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	collectEntries(p)
	code := p.Wait()

	if code != 1 {
		t.Errorf("expected exit code 1, got %d", code)
	}
	tail := p.StderrTail()
	if !strings.Contains(tail, "diagnostic line 40") {
		t.Errorf("stderr tail truncated, missing final line: %q", tail)
	}
}
