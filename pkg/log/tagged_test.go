package log

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	got := render(Tags{File: "deeplink", Function: "Parse"}, "unknown action", Fields{"url": "x://y", "attempt": 2})
	assert.Equal(t, "[deeplink.Parse] unknown action attempt=2 url=x://y", got)
	assert.Equal(t, "plain", render(Tags{}, "plain", nil))
}

func TestTaggedWritesThroughPackageLogger(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	Tagged().Error(Tags{File: "session", Function: "Initialize"}, "failed", Fields{"err": "boom"})
	assert.Contains(t, buf.String(), "[session.Initialize] failed err=boom")
	assert.Contains(t, buf.String(), "[ERROR]")
}

func TestNopIsSilent(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	Nop().Error(Tags{}, "ignored", nil)
	assert.Empty(t, buf.String())
}
