package console_test

import (
	"bytes"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/m-mizutani/nxpatch/pkg/utils/console"
)

func TestPrinter_NoColor(t *testing.T) {
	var buf bytes.Buffer
	p := console.New(&buf, true)

	p.Infof("info %d", 1)
	p.Warnf("warn %s", "x")
	p.Successf("done")
	p.Errorf("failed: %v", "boom")

	gt.Value(t, buf.String()).Equal("info 1\nwarn x\ndone\nfailed: boom\n")
}

func TestPrinter_Color(t *testing.T) {
	var buf bytes.Buffer
	p := console.New(&buf, false)
	p.Warnf("careful")

	gt.String(t, buf.String()).Contains("careful")
}
