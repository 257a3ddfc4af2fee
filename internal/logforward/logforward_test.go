package logforward

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	lines [][]byte
}

func (r *recordingSink) Log(line []byte) {
	cp := append([]byte(nil), line...)
	r.lines = append(r.lines, cp)
}

func TestWriteEmitsOneLinePerNewline(t *testing.T) {
	sink := &recordingSink{}
	w := New(sink)

	n, err := w.Write([]byte("alpha\nbeta\ngamma"))
	require.NoError(t, err)
	assert.Equal(t, len("alpha\nbeta\ngamma"), n)

	require.Len(t, sink.lines, 2)
	assert.Equal(t, "alpha", string(sink.lines[0]))
	assert.Equal(t, "beta", string(sink.lines[1]))
	assert.Equal(t, 5, w.Len())
}

func TestWriteAcrossMultipleCallsJoinsPartialLine(t *testing.T) {
	sink := &recordingSink{}
	w := New(sink)

	_, _ = w.Write([]byte("hel"))
	_, _ = w.Write([]byte("lo\nworld"))

	require.Len(t, sink.lines, 1)
	assert.Equal(t, "hello", string(sink.lines[0]))
	assert.Equal(t, "world", string(w.incomplete))
}

func TestCloseFlushesTrailingPartialLine(t *testing.T) {
	sink := &recordingSink{}
	w := New(sink)

	_, _ = w.Write([]byte("no newline here"))
	require.NoError(t, w.Close())

	require.Len(t, sink.lines, 1)
	assert.Equal(t, "no newline here", string(sink.lines[0]))
	assert.Equal(t, 0, w.Len())
}

func TestCloseIsIdempotent(t *testing.T) {
	sink := &recordingSink{}
	w := New(sink)
	_, _ = w.Write([]byte("x"))

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.Len(t, sink.lines, 1)
}

func TestCloseOnEmptyBufferEmitsNothing(t *testing.T) {
	sink := &recordingSink{}
	w := New(sink)
	require.NoError(t, w.Close())
	assert.Empty(t, sink.lines)
}

func TestReadAndSeekFail(t *testing.T) {
	w := New(&recordingSink{})
	_, err := w.Read(make([]byte, 8))
	assert.ErrorIs(t, err, ErrWriteOnly)
	_, err = w.Seek(0, 0)
	assert.ErrorIs(t, err, ErrWriteOnly)
}

func TestKNewlinesProduceKCalls(t *testing.T) {
	sink := &recordingSink{}
	w := New(sink)
	data := []byte("a\nb\nc\nd\ne\n")
	_, _ = w.Write(data)
	assert.Len(t, sink.lines, 5)
	require.NoError(t, w.Close())
	assert.Len(t, sink.lines, 5) // no trailing partial line to flush
}
