package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/nxpatch/pkg/domain/interfaces"
)

type lineConfirmer struct {
	reader  *bufio.Reader
	w       io.Writer
	pending chan readResult
}

type readResult struct {
	line string
	err  error
}

// NewLineConfirmer returns a Confirmer that writes the question to w and
// reads one answer line from r. Only "y" (any case) is affirmative. An
// empty input stream counts as a negative answer. Cancelling the context
// abandons the read and returns the context error.
func NewLineConfirmer(r io.Reader, w io.Writer) interfaces.Confirmer {
	return &lineConfirmer{
		reader: bufio.NewReader(r),
		w:      w,
	}
}

// Confirm implements interfaces.Confirmer
func (c *lineConfirmer) Confirm(ctx context.Context, question string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if _, err := fmt.Fprintf(c.w, "%s (y/N): ", question); err != nil {
		return false, goerr.Wrap(err, "failed to write prompt")
	}

	line, err := c.readLine(ctx)
	if err != nil && !errors.Is(err, io.EOF) {
		if ctx.Err() != nil {
			_, _ = fmt.Fprintln(c.w)
			return false, err
		}
		return false, goerr.Wrap(err, "failed to read answer")
	}
	if errors.Is(err, io.EOF) {
		// Keep following output off the prompt line
		_, _ = fmt.Fprintln(c.w)
	}

	return IsAffirmative(line), nil
}

// readLine waits for the next line or for ctx to be done. A read abandoned
// by cancellation is picked up by the next call instead of starting a
// second concurrent read.
func (c *lineConfirmer) readLine(ctx context.Context) (string, error) {
	if c.pending == nil {
		ch := make(chan readResult, 1)
		go func() {
			line, err := c.reader.ReadString('\n')
			ch <- readResult{line: line, err: err}
		}()
		c.pending = ch
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-c.pending:
		c.pending = nil
		return r.line, r.err
	}
}

// IsAffirmative reports whether answer is "y" or "Y", ignoring surrounding whitespace
func IsAffirmative(answer string) bool {
	return strings.EqualFold(strings.TrimSpace(answer), "y")
}
