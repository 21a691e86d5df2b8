package attachment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAcceptedByExtensionAndSize(t *testing.T) {
	assert.True(t, IsAccepted("photo.jpg", 1024, 0))
	assert.True(t, IsAccepted("report.PDF", 1024, 0))
	assert.False(t, IsAccepted("malware.exe", 1024, 0))
	assert.False(t, IsAccepted("huge.pdf", MaxAttachmentSize+1, 0))
	assert.True(t, IsAccepted("huge.pdf", MaxAttachmentSize, 0))
}

func TestIsAcceptedCustomMaxSize(t *testing.T) {
	assert.False(t, IsAccepted("file.txt", 2000, 1000))
	assert.True(t, IsAccepted("file.txt", 500, 1000))
}

func TestExtractTextPlain(t *testing.T) {
	assert.Equal(t, "hello world", ExtractText("note.txt", []byte("hello world")))
}

func TestExtractTextImageIsEmpty(t *testing.T) {
	assert.Equal(t, "", ExtractText("photo.png", []byte{0x89, 0x50, 0x4e, 0x47}))
}

func TestExtractTextUnsupportedBinaryIsEmpty(t *testing.T) {
	assert.Equal(t, "", ExtractText("archive.zip", []byte{0x00, 0x01, 0x02}))
}

func TestExtractTextBestEffortOnUnknownTextLike(t *testing.T) {
	assert.Equal(t, "plain content", ExtractText("mystery.dat", []byte("plain content")))
}

func TestDescribeEmptyAttachmentsReturnsEmptyMap(t *testing.T) {
	out := Describe(nil, nil, nil, nil)
	assert.Empty(t, out)
}
