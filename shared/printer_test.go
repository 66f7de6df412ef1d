package shared

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bufferHook struct {
	strings.Builder
	closed bool
}

func (b *bufferHook) Close() error {
	b.closed = true
	return nil
}

func TestPrinterRequiresHooks(t *testing.T) {
	_, err := NewPrinter("  ")
	assert.ErrorContains(t, err, "no hook provided")

	_, err = NewPrinter("  ", nil)
	assert.ErrorContains(t, err, "nil pointed hook")
}

func TestPrinterWriteln(t *testing.T) {
	hook := &bufferHook{}
	p, err := NewPrinter("  ", hook)
	require.NoError(t, err)

	require.NoError(t, p.Writeln("line one\nline two", 1))
	assert.Equal(t, "  line one\n  line two\n", hook.String())
}

func TestPrinterPanel(t *testing.T) {
	hook := &bufferHook{}
	p, err := NewPrinter("  ", hook)
	require.NoError(t, err)

	require.NoError(t, p.Panel("── AI ──", []string{"hello", "world"}, 0))
	assert.Equal(t, "── AI ──\n  hello\n  world\n", hook.String())
}

func TestPrinterPanelEmpty(t *testing.T) {
	hook := &bufferHook{}
	p, err := NewPrinter("  ", hook)
	require.NoError(t, err)

	require.NoError(t, p.Panel("── You ──", nil, 0))
	assert.Equal(t, "── You ──\n  (empty)\n", hook.String())
}

func TestPrinterClose(t *testing.T) {
	hook := &bufferHook{}
	p, err := NewPrinter("  ", hook)
	require.NoError(t, err)

	require.NoError(t, p.Close())
	assert.True(t, hook.closed)
}
