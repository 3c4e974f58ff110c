package intake

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairlens/backend/internal/testutil"
)

func testConfig() Config {
	return Config{
		SizeThreshold:     1024,
		PreviewByteBudget: 256,
		PreviewCharBudget: 4000,
		MaxPreviewRows:    50,
		MaxPreviewCols:    30,
	}
}

// bigCSV builds a CSV payload larger than the test size threshold.
func bigCSV(t *testing.T) string {
	t.Helper()
	var sb strings.Builder
	sb.WriteString("age,income,zip\n")
	for i := 0; sb.Len() < 4096; i++ {
		fmt.Fprintf(&sb, "%d,%d,%05d\n", 20+i%50, 30000+i, i%99999)
	}
	return sb.String()
}

func waitForStatus(t *testing.T, c *Controller, want Status) State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := c.Snapshot(); s.Status == want {
			return s
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("controller never reached status %q (now %q)", want, c.Snapshot().Status)
	return State{}
}

func waitForRefinedPreview(t *testing.T, c *Controller) State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s := c.Snapshot()
		if s.Metadata != nil && s.Metadata.ContentPreview != PlaceholderPreview {
			return s
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("preview was never refined")
	return State{}
}

func TestProcessFile_SmallCSV(t *testing.T) {
	mock := testutil.NewMockCache()
	c := NewController(testConfig(), mock)

	content := "age,income\n34,52000\n29,48000\n"
	c.ProcessFile(context.Background(), "census.csv", int64(len(content)), "text/csv", strings.NewReader(content))

	state := c.Snapshot()
	assert.Equal(t, StatusComplete, state.Status)
	assert.Equal(t, 100, state.Progress)
	require.NotNil(t, state.Metadata)
	assert.Equal(t, "census.csv", state.Metadata.Name)
	assert.Equal(t, content, state.Metadata.ContentPreview)
	require.NotNil(t, state.TablePreview)
	assert.Equal(t, []string{"age", "income"}, state.TablePreview.Headers)

	assert.Equal(t, []byte(content), mock.Blob())
	require.NotNil(t, mock.Metadata())
	assert.Equal(t, "census.csv", mock.Metadata().Name)
}

func TestProcessFile_SmallNonTabular(t *testing.T) {
	mock := testutil.NewMockCache()
	c := NewController(testConfig(), mock)

	content := "just some notes\nwithout any structure\n"
	c.ProcessFile(context.Background(), "notes.txt", int64(len(content)), "text/plain", strings.NewReader(content))

	state := c.Snapshot()
	assert.Equal(t, StatusComplete, state.Status)
	assert.Nil(t, state.TablePreview, "non-tabular text is not an error")
	require.NotNil(t, state.Metadata)
	assert.Equal(t, content, state.Metadata.ContentPreview)
}

func TestProcessFile_SmallDecodeFailure(t *testing.T) {
	mock := testutil.NewMockCache()
	c := NewController(testConfig(), mock)

	raw := string([]byte{0xff, 0xfe, 0x00, 0x81, 0x82})
	c.ProcessFile(context.Background(), "blob.bin", int64(len(raw)), "application/octet-stream", strings.NewReader(raw))

	state := c.Snapshot()
	assert.Equal(t, StatusComplete, state.Status)
	require.NotNil(t, state.Metadata)
	assert.Equal(t, DecodeFailedPreview, state.Metadata.ContentPreview)
	assert.Nil(t, state.TablePreview)

	// The record is still cached despite the decode failure.
	require.NotNil(t, mock.Metadata())
	assert.Equal(t, DecodeFailedPreview, mock.Metadata().ContentPreview)
}

func TestProcessFile_SmallCacheFailureIsSwallowed(t *testing.T) {
	mock := testutil.NewMockCache()
	mock.SaveBlobErr = fmt.Errorf("quota exceeded")
	c := NewController(testConfig(), mock)

	content := "a,b\n1,2\n"
	c.ProcessFile(context.Background(), "t.csv", int64(len(content)), "text/csv", strings.NewReader(content))

	state := c.Snapshot()
	assert.Equal(t, StatusComplete, state.Status, "cache failure must not fail the upload")
	assert.Equal(t, 100, state.Progress)
}

func TestProcessFile_LargePath(t *testing.T) {
	mock := testutil.NewMockCache()
	c := NewController(testConfig(), mock)

	content := bigCSV(t)
	c.ProcessFile(context.Background(), "big.csv", int64(len(content)), "text/csv", strings.NewReader(content))

	state := waitForStatus(t, c, StatusComplete)
	assert.Equal(t, 100, state.Progress)

	state = waitForRefinedPreview(t, c)
	require.NotNil(t, state.TablePreview)
	assert.Equal(t, []string{"age", "income", "zip"}, state.TablePreview.Headers)

	// Placeholder write precedes the refined write.
	log := mock.MetadataLog()
	require.GreaterOrEqual(t, len(log), 2)
	assert.Equal(t, PlaceholderPreview, log[0].ContentPreview)
	assert.NotEqual(t, PlaceholderPreview, log[len(log)-1].ContentPreview)

	assert.Equal(t, []byte(content), mock.Blob())
}

func TestProcessFile_LargeUnknownSizeUsesHeuristic(t *testing.T) {
	cfg := testConfig()
	cfg.HeuristicStep = 20
	cfg.HeuristicInterval = time.Millisecond
	mock := testutil.NewMockCache()
	c := NewController(cfg, mock)

	content := bigCSV(t)
	c.ProcessFile(context.Background(), "stream.csv", -1, "text/csv", slowReader(content))

	state := waitForStatus(t, c, StatusComplete)
	assert.Equal(t, 100, state.Progress)
}

func TestProcessFile_SupersededJobIsNoOp(t *testing.T) {
	mock := testutil.NewMockCache()
	c := NewController(testConfig(), mock)

	// A gated reader lets the first upload's background work straddle the
	// second ProcessFile call.
	stale := bigCSV(t)
	gate := make(chan struct{})
	r := &gatedReader{src: strings.NewReader(stale), gate: gate}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.ProcessFile(context.Background(), "stale.csv", int64(len(stale)), "text/csv", r)
	}()

	// Wait until the stale job has published its placeholder.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := c.Snapshot(); s.Metadata != nil {
			break
		}
		time.Sleep(time.Millisecond)
	}

	fresh := "a,b\n1,2\n"
	c.ProcessFile(context.Background(), "fresh.csv", int64(len(fresh)), "text/csv", strings.NewReader(fresh))

	// Unblock the stale job's remaining reads and let it run to completion.
	close(gate)
	wg.Wait()
	time.Sleep(20 * time.Millisecond)

	state := c.Snapshot()
	require.NotNil(t, state.Metadata)
	assert.Equal(t, "fresh.csv", state.Metadata.Name, "stale background work must not clobber the newer upload")
	assert.Equal(t, StatusComplete, state.Status)
	assert.Equal(t, 100, state.Progress)

	// The stale spool must not have published over the fresh cache record.
	require.NotNil(t, mock.Metadata())
	assert.Equal(t, "fresh.csv", mock.Metadata().Name)
	assert.Equal(t, []byte(fresh), mock.Blob())
}

func TestClear_AbandonsInFlightWork(t *testing.T) {
	mock := testutil.NewMockCache()
	c := NewController(testConfig(), mock)

	stale := bigCSV(t)
	gate := make(chan struct{})
	r := &gatedReader{src: strings.NewReader(stale), gate: gate}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.ProcessFile(context.Background(), "stale.csv", int64(len(stale)), "text/csv", r)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := c.Snapshot(); s.Metadata != nil {
			break
		}
		time.Sleep(time.Millisecond)
	}

	c.Clear(context.Background())
	close(gate)
	wg.Wait()
	time.Sleep(20 * time.Millisecond)

	state := c.Snapshot()
	assert.Nil(t, state.Metadata, "cleared state must not resurface")
	assert.Equal(t, Status(""), state.Status)
	assert.GreaterOrEqual(t, mock.Deleted(), 1)
}

// gatedReader serves the first PreviewByteBudget bytes freely, then blocks
// further reads until the gate closes.
type gatedReader struct {
	src    io.Reader
	gate   chan struct{}
	served int
}

func (g *gatedReader) Read(p []byte) (int, error) {
	if g.served >= 256 {
		<-g.gate
	}
	n, err := g.src.Read(p)
	g.served += n
	return n, err
}

// slowReader trickles data so heuristic progress ticks can fire.
type slowPacedReader struct {
	src io.Reader
}

func slowReader(s string) io.Reader {
	return &slowPacedReader{src: strings.NewReader(s)}
}

func (s *slowPacedReader) Read(p []byte) (int, error) {
	time.Sleep(200 * time.Microsecond)
	if len(p) > 512 {
		p = p[:512]
	}
	return s.src.Read(p)
}
