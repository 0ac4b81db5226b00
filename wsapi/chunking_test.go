package wsapi

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/freshell/freshell/terminal"
)

func TestSplitChunks_NeverTearsRuneBoundaries(t *testing.T) {
	s := strings.Repeat("a", 10) + strings.Repeat("日", 10) + strings.Repeat("b", 10)
	chunks := splitChunks(s, 7)

	var rebuilt strings.Builder
	for _, c := range chunks {
		if !strings.ValidString(c) {
			t.Fatalf("chunk is not valid UTF-8: %q", c)
		}
		rebuilt.WriteString(c)
	}
	if rebuilt.String() != s {
		t.Errorf("chunks don't reassemble to the original string")
	}
}

func TestSplitChunks_EmptyInput(t *testing.T) {
	if chunks := splitChunks("", 100); chunks != nil {
		t.Errorf("expected nil chunks for empty input, got %v", chunks)
	}
}

// recordingClient is a minimal terminal.ClientConn for chunking tests.
type recordingClient struct {
	buffered int
	sent     []interface{}
	failAt   int
}

func (c *recordingClient) WriteJSON(v interface{}) error {
	if c.failAt > 0 && len(c.sent) == c.failAt {
		return errSendBufferFull
	}
	c.sent = append(c.sent, v)
	return nil
}
func (c *recordingClient) Close(code int, reason string) error { return nil }
func (c *recordingClient) BufferedAmount() int                 { return c.buffered }

var _ terminal.ClientConn = (*recordingClient)(nil)

func TestSendSnapshotChunked_SendsStartChunksEnd(t *testing.T) {
	c := &recordingClient{}
	ok := sendSnapshotChunked(context.Background(), c, "term-1", strings.Repeat("x", 50), 10, 1<<20, time.Second, nil)
	if !ok {
		t.Fatal("expected sendSnapshotChunked to succeed")
	}

	if len(c.sent) < 2 {
		t.Fatalf("expected at least start + end frames, got %d messages", len(c.sent))
	}
	if _, ok := c.sent[0].(attachedStartMessage); !ok {
		t.Errorf("expected first message to be attached.start, got %T", c.sent[0])
	}
	if _, ok := c.sent[len(c.sent)-1].(attachedEndMessage); !ok {
		t.Errorf("expected last message to be attached.end, got %T", c.sent[len(c.sent)-1])
	}
}

func TestSendSnapshotChunked_AbortsOnCancel(t *testing.T) {
	c := &recordingClient{}
	cancelled := true
	ok := sendSnapshotChunked(context.Background(), c, "term-1", strings.Repeat("x", 50), 10, 1<<20, time.Second, func() bool { return cancelled })
	if ok {
		t.Error("expected sendSnapshotChunked to abort when shouldCancel is true")
	}
}

func TestWaitForDrain_ReturnsImmediatelyUnderThreshold(t *testing.T) {
	c := &recordingClient{buffered: 10}
	if !waitForDrain(context.Background(), c, 100, time.Second, nil) {
		t.Error("expected immediate success when already under threshold")
	}
}

func TestWaitForDrain_TimesOutWhenNeverDrains(t *testing.T) {
	c := &recordingClient{buffered: 1000}
	start := time.Now()
	ok := waitForDrain(context.Background(), c, 100, 50*time.Millisecond, nil)
	if ok {
		t.Error("expected waitForDrain to time out")
	}
	if time.Since(start) > time.Second {
		t.Error("waitForDrain took far longer than its timeout")
	}
}
