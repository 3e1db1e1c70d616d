package service

import (
	"fmt"
	"io"
	"sync"
)

// Console serializes labeled lines of several processes to one writer.
type Console struct {
	mx sync.Mutex
	w  io.Writer
}

// NewConsole returns a Console writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// Line prints "[name] text".
func (c *Console) Line(name, text string) {
	c.mx.Lock()
	defer c.mx.Unlock()
	_, _ = fmt.Fprintf(c.w, "[%s] %s\n", name, text)
}

// Notice prints text as is, followed by a newline.
func (c *Console) Notice(text string) {
	c.mx.Lock()
	defer c.mx.Unlock()
	_, _ = fmt.Fprintln(c.w, text)
}
