package shared

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

type StringWriteCloser interface {
	io.Closer
	io.StringWriter
}

type WriteCloser struct {
	w io.WriteCloser
}

func NewWriteCloser(w io.WriteCloser) StringWriteCloser {
	if w == nil {
		return nil
	}
	return &WriteCloser{w: w}
}

func (wc *WriteCloser) WriteString(s string) (n int, err error) {
	return wc.w.Write([]byte(s))
}

func (wc *WriteCloser) Close() error {
	return wc.w.Close()
}

// Printer renders the chat surface to one or more sinks. The chat
// agent owns one Printer and redraws both transcript panels through it
// after every dispatched event, so drawing is serialized here.
type Printer struct {
	mu     sync.Mutex
	indStr string
	hooks  []StringWriteCloser
}

func NewPrinter(indentString string, hooks ...StringWriteCloser) (*Printer, error) {
	if len(hooks) == 0 {
		return nil, errors.New("no hook provided")
	}
	for _, hook := range hooks {
		if hook == nil {
			return nil, errors.New("a nil pointed hook is given")
		}
	}
	return &Printer{indStr: indentString, hooks: hooks}, nil
}

func (p *Printer) Writeln(s string, ind int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.write(s, ind); err != nil {
		return err
	}
	return p.raw("\n")
}

// Panel draws a titled message panel: the title line followed by every
// message indented one level deeper.
func (p *Printer) Panel(title string, messages []string, ind int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.write(title, ind); err != nil {
		return err
	}
	if err := p.raw("\n"); err != nil {
		return err
	}
	if len(messages) == 0 {
		if err := p.write("(empty)", ind+1); err != nil {
			return err
		}
		return p.raw("\n")
	}
	for _, msg := range messages {
		if err := p.write(msg, ind+1); err != nil {
			return err
		}
		if err := p.raw("\n"); err != nil {
			return err
		}
	}
	return nil
}

func (p *Printer) write(s string, ind int) error {
	indent := strings.Repeat(p.indStr, ind)
	firstLine := true
	for line := range strings.SplitSeq(s, "\n") {
		if firstLine {
			firstLine = false
			line = indent + line
		} else {
			line = "\n" + indent + line
		}
		if err := p.raw(line); err != nil {
			return err
		}
	}
	return nil
}

func (p *Printer) raw(s string) error {
	for _, hook := range p.hooks {
		if _, err := hook.WriteString(s); err != nil {
			return fmt.Errorf("on writing to hook: %w", err)
		}
	}
	return nil
}

func (p *Printer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, hook := range p.hooks {
		if err := hook.Close(); err != nil {
			return fmt.Errorf("on closing hook: %w", err)
		}
	}
	return nil
}
