package importer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/wesm/wahistory/internal/archive"
	"github.com/wesm/wahistory/internal/chat"
	"github.com/wesm/wahistory/internal/source"
	"github.com/wesm/wahistory/internal/testutil"
	"github.com/wesm/wahistory/internal/whatsapp"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func inlineFile(name, phoneNumber, text string) source.ImportFile {
	return source.ImportFile{
		Name:     name,
		Kind:     source.KindFile,
		Origin:   source.Inline{Text: text},
		Identity: source.Known{PhoneNumber: phoneNumber},
	}
}

func transcript(sender string) string {
	return testutil.NewTranscript().
		Say(sender, "hello").
		Say("Me", "hi back").
		String()
}

func newTestExtractor(media MediaResolver) *Extractor {
	logger := quietLogger()
	e := NewExtractor(
		source.NewLoader(nil, archive.DefaultLimits(), logger),
		whatsapp.NewParser(whatsapp.WithLocation(time.UTC), whatsapp.WithLogger(logger)),
		media,
	)
	return e.WithLogger(logger)
}

type recordingProgress struct {
	mu       sync.Mutex
	started  int
	messages []string
	skipped  map[string]string
	result   *Result
}

func (p *recordingProgress) OnStart(total int) { p.started = total }

func (p *recordingProgress) OnFileDone(done, total int, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, message)
}

func (p *recordingProgress) OnFileSkipped(id, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.skipped == nil {
		p.skipped = make(map[string]string)
	}
	p.skipped[id] = reason
}

func (p *recordingProgress) OnComplete(result *Result) { p.result = result }

func TestExtractSkipsFailingFile(t *testing.T) {
	var files []source.ImportFile
	for i := 1; i <= 5; i++ {
		text := transcript("Contact " + strconv.Itoa(i))
		if i == 3 {
			text = "this is not a transcript"
		}
		files = append(files, inlineFile(strconv.Itoa(i)+".txt", "+1555000"+strconv.Itoa(i), text))
	}

	progress := &recordingProgress{}
	e := newTestExtractor(nil).WithProgress(progress)
	e.BatchSize = 2
	e.Concurrency = 2

	res, err := e.Extract(context.Background(), files)
	testutil.MustNoErr(t, err, "Extract")

	var phones []string
	for _, c := range res.Chats {
		phones = append(phones, c.PhoneNumber)
	}
	testutil.AssertStrings(t, phones, "+15550001", "+15550002", "+15550004", "+15550005")

	if diff := cmp.Diff([]Skip{{ID: "3.txt", Reason: ReasonNoMessages}}, res.Skipped); diff != "" {
		t.Errorf("Skipped mismatch (-want +got):\n%s", diff)
	}

	if progress.started != 5 {
		t.Errorf("OnStart total = %d", progress.started)
	}
	if len(progress.messages) != 5 || progress.messages[4] != "Extracted 5 of 5 chats..." {
		t.Errorf("progress messages = %q", progress.messages)
	}
	if progress.skipped["3.txt"] != ReasonNoMessages {
		t.Errorf("OnFileSkipped = %v", progress.skipped)
	}
	if progress.result != res {
		t.Error("OnComplete should receive the returned result")
	}
}

func TestExtractNothing(t *testing.T) {
	files := []source.ImportFile{
		inlineFile("a.txt", "+15550001", "garbage"),
		inlineFile("b.txt", "+15550002", ""),
	}
	res, err := newTestExtractor(nil).Extract(context.Background(), files)
	if !errors.Is(err, ErrNothingExtracted) {
		t.Fatalf("err = %v, want ErrNothingExtracted", err)
	}
	want := []Skip{
		{ID: "a.txt", Reason: ReasonNoMessages},
		{ID: "b.txt", Reason: ReasonUnreadable},
	}
	if diff := cmp.Diff(want, res.Skipped); diff != "" {
		t.Errorf("Skipped mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractEmpty(t *testing.T) {
	res, err := newTestExtractor(nil).Extract(context.Background(), nil)
	testutil.MustNoErr(t, err, "Extract")
	if len(res.Chats) != 0 || len(res.Skipped) != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestExtractPendingIdentity(t *testing.T) {
	pending := source.ImportFile{
		Name:     "WhatsApp Chat - Alice.txt",
		Kind:     source.KindFile,
		Origin:   source.Inline{Text: transcript("Alice")},
		Identity: source.Pending{ContactName: "Alice"},
	}
	provided := pending.WithProvidedPhone(" +15550042 ")
	provided.Name = "other.txt"

	res, err := newTestExtractor(nil).Extract(context.Background(), []source.ImportFile{pending, provided})
	testutil.MustNoErr(t, err, "Extract")

	if len(res.Chats) != 1 {
		t.Fatalf("chats = %d, want 1", len(res.Chats))
	}
	c := res.Chats[0]
	if c.PhoneNumber != "+15550042" || c.Name != "Alice" {
		t.Errorf("chat = %q %q", c.PhoneNumber, c.Name)
	}
	if diff := cmp.Diff([]Skip{{ID: pending.Name, Reason: ReasonPhoneNeeded}}, res.Skipped); diff != "" {
		t.Errorf("Skipped mismatch (-want +got):\n%s", diff)
	}
}

type fakeMedia struct {
	mapping  map[string]string
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	delay    time.Duration
}

func (m *fakeMedia) Resolve(ctx context.Context, chatID string, f source.ImportFile, files []string) map[string]string {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		seen := m.maxSeen.Load()
		if n <= seen || m.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	time.Sleep(m.delay)
	return m.mapping
}

func withPhoto(sender string) string {
	return testutil.NewTranscript().
		Say(sender, "look").
		Attach(sender, "IMG-1.jpg").
		String()
}

func TestExtractAppliesMediaMapping(t *testing.T) {
	media := &fakeMedia{mapping: map[string]string{"IMG-1.jpg": "/api/media/c/0123456789abcdef.jpg"}}
	res, err := newTestExtractor(media).Extract(context.Background(),
		[]source.ImportFile{inlineFile("a.txt", "+15550001", withPhoto("Bob"))})
	testutil.MustNoErr(t, err, "Extract")

	c := res.Chats[0]
	last := c.Messages[len(c.Messages)-1]
	if last.Type != chat.TypeImage || last.AttachmentURL != "/api/media/c/0123456789abcdef.jpg" {
		t.Errorf("attachment = %+v", last)
	}
	if c.LastMessage.AttachmentURL != last.AttachmentURL {
		t.Errorf("LastMessage not remapped: %+v", c.LastMessage)
	}
}

func TestExtractKeepsRawNamesWhenMediaFails(t *testing.T) {
	res, err := newTestExtractor(&fakeMedia{}).Extract(context.Background(),
		[]source.ImportFile{inlineFile("a.txt", "+15550001", withPhoto("Bob"))})
	testutil.MustNoErr(t, err, "Extract")

	paths := chat.ExtractAttachmentPaths(res.Chats[0])
	testutil.AssertStrings(t, paths, "IMG-1.jpg")
}

func TestExtractBoundsConcurrency(t *testing.T) {
	media := &fakeMedia{delay: 20 * time.Millisecond}
	var files []source.ImportFile
	for i := range 8 {
		files = append(files, inlineFile(strconv.Itoa(i)+".txt", "+1555000"+strconv.Itoa(i), withPhoto("Bob")))
	}
	e := newTestExtractor(media)
	e.BatchSize = 4
	e.Concurrency = 2

	res, err := e.Extract(context.Background(), files)
	testutil.MustNoErr(t, err, "Extract")
	if len(res.Chats) != 8 {
		t.Errorf("chats = %d", len(res.Chats))
	}
	if got := media.maxSeen.Load(); got > 2 {
		t.Errorf("max in flight = %d, want <= 2", got)
	}
}

func TestExtractCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestExtractor(nil).Extract(ctx,
		[]source.ImportFile{inlineFile("a.txt", "+15550001", transcript("Bob"))})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
