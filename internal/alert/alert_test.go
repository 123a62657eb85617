package alert_test

import (
	"context"
	"errors"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jmerrifield20/AyuTrack/internal/alert"
)

var sample = alert.Integrity{
	Root:    "ab12",
	Entries: 7,
	Err:     errors.New("entry 3: previous hash mismatch"),
	At:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
}

func TestIntegrity_message(t *testing.T) {
	assert.Equal(t, "[AyuTrack] ledger integrity degraded (7 entries)", sample.Subject())
	body := sample.Body()
	assert.Contains(t, body, "2024-01-01T00:00:00Z")
	assert.Contains(t, body, "Root:    ab12")
	assert.Contains(t, body, "entry 3: previous hash mismatch")
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	n := alert.NewLogNotifier(zap.New(core))

	require.NoError(t, n.Notify(context.Background(), sample))
	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(7), entries[0].ContextMap()["entries"])
}

func TestNewSMTPNotifier_config(t *testing.T) {
	_, err := alert.NewSMTPNotifier(alert.SMTPConfig{Host: "mail", From: "ledger@example.com"})
	assert.Error(t, err)
}

// fakeSMTP accepts one message and returns its recipients and DATA.
func fakeSMTP(t *testing.T) (string, <-chan []string, <-chan string) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { lis.Close() })

	rcpts := make(chan []string, 1)
	data := make(chan string, 1)
	go func() {
		conn, err := lis.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		tp := textproto.NewConn(conn)
		_ = tp.PrintfLine("220 fake ESMTP")

		var to []string
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			verb := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
			switch verb {
			case "EHLO", "HELO":
				_ = tp.PrintfLine("250 fake")
			case "MAIL":
				_ = tp.PrintfLine("250 ok")
			case "RCPT":
				to = append(to, strings.TrimSuffix(strings.TrimPrefix(line, "RCPT TO:<"), ">"))
				_ = tp.PrintfLine("250 ok")
			case "DATA":
				_ = tp.PrintfLine("354 go ahead")
				body, err := tp.ReadDotBytes()
				if err != nil {
					return
				}
				rcpts <- to
				data <- string(body)
				_ = tp.PrintfLine("250 queued")
			case "QUIT":
				_ = tp.PrintfLine("221 bye")
				return
			default:
				_ = tp.PrintfLine("502 not implemented")
			}
		}
	}()
	return lis.Addr().String(), rcpts, data
}

func TestSMTPNotifier(t *testing.T) {
	addr, rcpts, data := fakeSMTP(t)
	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)

	n, err := alert.NewSMTPNotifier(alert.SMTPConfig{
		Host: host,
		Port: p,
		From: "ledger@example.com",
		To:   []string{"ops@example.com", "qa@example.com"},
	})
	require.NoError(t, err)
	require.NoError(t, n.Notify(context.Background(), sample))

	assert.Equal(t, []string{"ops@example.com", "qa@example.com"}, <-rcpts)
	msg := <-data
	assert.Contains(t, msg, "Subject: [AyuTrack] ledger integrity degraded (7 entries)")
	assert.Contains(t, msg, "To: ops@example.com, qa@example.com")
	assert.Contains(t, msg, "previous hash mismatch")
}
