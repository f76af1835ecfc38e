// Package stream bridges provider-specific SSE/chunked wire formats into a
// single ByteStream of assistant text, optionally interleaved with
// __TOOL_CALL_EVENT__ frames describing tool calls as they are detected.
package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/taipm/llmgateway/gateway"
)

const (
	eventMarker = "__TOOL_CALL_EVENT__"
)

// ByteStream is a pull-based reader of assistant output bytes, paired with a
// side-channel Err() that resolves once the underlying read completes (or
// fails). It implements io.Reader so callers can pipe it directly to an
// http.ResponseWriter or any io.Writer via io.Copy.
type ByteStream struct {
	r    *io.PipeReader
	w    *io.PipeWriter
	done chan struct{}
	mu   sync.Mutex
	err  error
	tc   []gateway.ToolCall
}

// newByteStream returns a ByteStream and the writer side used to feed it.
// The writer side is private to this package; the constructors below (Pipe,
// Manual and the like) write to it or hand it to the code producing bytes.
func newByteStream() (*ByteStream, *io.PipeWriter) {
	pr, pw := io.Pipe()
	return &ByteStream{r: pr, w: pw, done: make(chan struct{})}, pw
}

func (b *ByteStream) Read(p []byte) (int, error) {
	return b.r.Read(p)
}

// Close releases the reader side. Safe to call multiple times.
func (b *ByteStream) Close() error {
	return b.r.Close()
}

// Err returns the terminal error recorded when production finished, if any.
// Only meaningful after the stream has been fully drained (Read returned
// io.EOF).
func (b *ByteStream) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

func (b *ByteStream) setErr(err error) {
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
}

// ToolCalls blocks until production has finished, then returns the tool
// calls the producer detected. Callers drain the stream itself first (the
// producer goroutine closes the pipe writer before ToolCalls becomes
// available).
func (b *ByteStream) ToolCalls() []gateway.ToolCall {
	<-b.done
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tc
}

func (b *ByteStream) setToolCalls(tc []gateway.ToolCall) {
	b.mu.Lock()
	b.tc = tc
	b.mu.Unlock()
}

// EncodeToolCallEvent renders a ToolCallEvent in the wire envelope that
// StreamToolCalls-enabled callers scan for:
// "\n__TOOL_CALL_EVENT__<json>__TOOL_CALL_EVENT__\n".
func EncodeToolCallEvent(ev gateway.ToolCallEvent) (string, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("stream: encode tool call event: %w", err)
	}
	return "\n" + eventMarker + string(payload) + eventMarker + "\n", nil
}

// Scanner splits a byte stream back into plain text chunks and decoded
// ToolCallEvent frames, for callers (tests, or a non-HTTP consumer) that want
// structured access instead of raw bytes.
type Scanner struct {
	sc *bufio.Scanner
}

// NewScanner wraps a reader (typically a *ByteStream) for frame-aware
// scanning.
func NewScanner(r io.Reader) *Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &Scanner{sc: sc}
}

// Frame is one decoded unit: either Text or Event is populated.
type Frame struct {
	Text  string
	Event *gateway.ToolCallEvent
}

// Next reads and decodes the next line-delimited frame. Text lines unrelated
// to tool-call events are returned verbatim (with a trailing newline); lines
// bracketed by the event marker are decoded into Event.
func (s *Scanner) Next() (Frame, bool, error) {
	if !s.sc.Scan() {
		return Frame{}, false, s.sc.Err()
	}
	line := s.sc.Text()
	if len(line) > 2*len(eventMarker) && hasMarkerFrame(line) {
		raw := line[len(eventMarker) : len(line)-len(eventMarker)]
		var ev gateway.ToolCallEvent
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return Frame{}, false, fmt.Errorf("stream: decode tool call event: %w", err)
		}
		return Frame{Event: &ev}, true, nil
	}
	return Frame{Text: line + "\n"}, true, nil
}

func hasMarkerFrame(line string) bool {
	return len(line) >= 2*len(eventMarker) &&
		line[:len(eventMarker)] == eventMarker &&
		line[len(line)-len(eventMarker):] == eventMarker
}

// Producer is implemented by each provider's stream transformer: given the
// raw upstream SSE/chunk reader, Run pushes decoded assistant text (and,
// when toolEvents is true, encoded tool-call event frames) to w, and returns
// the tool calls observed by the time the upstream stream ended.
type Producer interface {
	Run(ctx context.Context, upstream io.Reader, w io.Writer, toolEvents bool) ([]gateway.ToolCall, error)
}

// Pipe runs a Producer against an upstream reader and returns a ByteStream
// the caller can read incrementally; ByteStream.ToolCalls() becomes
// available once the stream is drained.
func Pipe(ctx context.Context, p Producer, upstream io.Reader, toolEvents bool) *ByteStream {
	bs, pw := newByteStream()

	go func() {
		defer close(bs.done)
		if closer, ok := upstream.(io.Closer); ok {
			defer closer.Close()
		}
		tc, err := p.Run(ctx, upstream, pw, toolEvents)
		bs.setToolCalls(tc)
		if err != nil {
			bs.setErr(err)
			pw.CloseWithError(err)
			return
		}
		pw.Close()
	}()

	return bs
}

// FromString wraps an already-known string as a completed ByteStream: no
// goroutine races against the provider, the text is simply replayed to the
// reader. Used when the orchestrator has no reliable signal for which
// model call was "final" and falls back to a fully-buffered result (see
// orchestrator.RunStream).
func FromString(content string) *ByteStream {
	bs, pw := newByteStream()
	go func() {
		defer close(bs.done)
		_, err := io.WriteString(pw, content)
		bs.setToolCalls(nil)
		if err != nil {
			bs.setErr(err)
			pw.CloseWithError(err)
			return
		}
		pw.Close()
	}()
	return bs
}

// Manual starts a ByteStream fed by fn directly, for producers (Gemini's SDK
// iterator, or an SDK with its own streaming decoder) that do not consume a
// raw io.Reader. fn receives the pipe writer and must close it (via
// w.Close() or w.CloseWithError) when done; ByteStream.ToolCalls() becomes
// available once it does.
func Manual(fn func(w *io.PipeWriter) ([]gateway.ToolCall, error)) *ByteStream {
	bs, pw := newByteStream()

	go func() {
		defer close(bs.done)
		tc, err := fn(pw)
		bs.setToolCalls(tc)
		if err != nil {
			bs.setErr(err)
		}
	}()

	return bs
}
