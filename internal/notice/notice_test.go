package notice

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"wedsite/internal/errcode"
)

func TestChannelNeverBlocks(t *testing.T) {
	ch := NewChannel(1)
	ch.Notify(Saved(time.Now()))
	ch.Notify(Failed(errcode.SaveFailed, "second", time.Now()))
	assert.Len(t, ch.C, 1)
	n := <-ch.C
	assert.Equal(t, errcode.OK, n.Code)
}

func TestMultiAndLog(t *testing.T) {
	var buf bytes.Buffer
	var got []Notice
	m := Multi{
		Log{Logger: slog.New(slog.NewTextHandler(&buf, nil))},
		Func(func(n Notice) { got = append(got, n) }),
		nil,
	}
	m.Notify(Failed(errcode.SessionExpired, "Session expired", time.Now()))
	assert.Len(t, got, 1)
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "code=4001")
}
