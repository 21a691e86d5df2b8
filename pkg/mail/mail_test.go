package mail

import (
	"net/mail"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessagePlainText(t *testing.T) {
	raw := "From: Alice <alice@example.com>\r\n" +
		"Subject: My car was hit\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"Rear-ended on Main St\r\n"

	msg, err := parseMessage(strings.NewReader(raw), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", msg.Sender)
	assert.Equal(t, "My car was hit", msg.Subject)
	assert.Equal(t, "Rear-ended on Main St\r\n", msg.Text)
	assert.Empty(t, msg.Attachments)
}

func TestParseMessageMultipartWithAttachment(t *testing.T) {
	raw := "From: Bob <bob@example.com>\r\n" +
		"Subject: Theft claim\r\n" +
		"Content-Type: multipart/mixed; boundary=XYZ\r\n" +
		"\r\n" +
		"--XYZ\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"My bike was stolen\r\n" +
		"--XYZ\r\n" +
		"Content-Type: application/pdf\r\n" +
		"Content-Disposition: attachment; filename=\"police_report.pdf\"\r\n" +
		"\r\n" +
		"%PDF-fake-bytes\r\n" +
		"--XYZ--\r\n"

	msg, err := parseMessage(strings.NewReader(raw), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", msg.Sender)
	assert.Contains(t, msg.Text, "My bike was stolen")
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "police_report.pdf", msg.Attachments[0].Filename)
	assert.Greater(t, msg.Attachments[0].Size, int64(0))
}

func TestReconcileTimestampPrefersEarliestResentDate(t *testing.T) {
	internal := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)
	earlier := internal.Add(-2 * time.Hour)

	h := mail.Header{
		"Resent-Date": []string{earlier.Format(time.RFC1123Z)},
	}
	got := reconcileTimestamp(h, internal)
	assert.True(t, got.Equal(earlier), "expected reconciled time %v to equal earlier resent-date %v", got, earlier)
}

func TestReconcileTimestampFallsBackToInternalDate(t *testing.T) {
	internal := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)
	got := reconcileTimestamp(mail.Header{}, internal)
	assert.True(t, got.Equal(internal))
}

func TestExtractXReceivedTime(t *testing.T) {
	xr := "from mail.example.com by mx.example.com; Thu, 5 Mar 2026 09:00:00 +0000"
	got := extractXReceivedTime(xr)
	assert.Equal(t, "Thu, 5 Mar 2026 09:00:00 +0000", got)
}

func TestExtractXReceivedTimeNoSemicolon(t *testing.T) {
	assert.Equal(t, "", extractXReceivedTime("no semicolon here"))
}
