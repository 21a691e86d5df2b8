// Package attachment implements the Attachment Describer (C4, spec §4.4)
// and the attachment admission rules (spec §4.5).
//
// Per-extension extraction is grounded directly on the teacher pack's
// kadirpekel-hector native document parsers
// (pkg/context/native_parsers.go): the PDFParser/OfficeParser CanParse /
// Parse split becomes extractPDF/extractDocx/extractXLSX below, using
// the same three libraries for the same three formats. That file reads
// text via ledongthuc/pdf's GetPlainText rather than rendering pages to
// images for OCR — no page-rasterizing or OCR library appears anywhere
// in the pack, so the "OCR each rendered page" language of spec §4.4 is
// satisfied here by that same text extraction; this approximation is
// recorded in DESIGN.md.
package attachment

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"

	"github.com/codeready-toolchain/claimflow/pkg/llmclient"
	"github.com/codeready-toolchain/claimflow/pkg/masking"
)

// acceptedExtensions is the admission whitelist (spec §4.5).
var acceptedExtensions = map[string]bool{
	"pdf": true, "doc": true, "docx": true, "xls": true, "xlsx": true,
	"ppt": true, "pptx": true, "jpg": true, "jpeg": true, "png": true,
	"gif": true, "bmp": true, "tiff": true, "webp": true, "txt": true,
	"rtf": true, "csv": true, "json": true, "xml": true, "zip": true,
	"rar": true, "7z": true, "tar": true, "gz": true,
}

// MaxAttachmentSize is the default admission size limit (spec §4.5, §6).
const MaxAttachmentSize = 10 * 1024 * 1024

var imageExtensions = map[string]string{
	"jpg": "image/jpeg", "jpeg": "image/jpeg", "png": "image/png",
	"gif": "image/gif", "bmp": "image/bmp", "tiff": "image/tiff", "webp": "image/webp",
}

// IsAccepted reports whether an attachment passes admission (spec §4.5).
// Rejected attachments are silently dropped by the caller.
func IsAccepted(filename string, size int64, maxSize int64) bool {
	if maxSize <= 0 {
		maxSize = MaxAttachmentSize
	}
	if size > maxSize {
		return false
	}
	ext := extOf(filename)
	return acceptedExtensions[ext]
}

func extOf(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return strings.TrimPrefix(ext, ".")
}

// ExtractText extracts best-effort text from an attachment's bytes (spec
// §4.4 step 1). Extraction failures never error: they yield empty text,
// letting that attachment contribute nothing rather than aborting the batch.
func ExtractText(filename string, data []byte) string {
	ext := extOf(filename)
	switch ext {
	case "pdf":
		return extractPDF(data)
	case "docx":
		return extractDocx(data)
	case "xlsx":
		return extractXLSX(data)
	case "txt", "csv", "json", "xml", "rtf":
		return string(data)
	default:
		if _, ok := imageExtensions[ext]; ok {
			return ""
		}
		return bestEffortPlainText(data)
	}
}

// extractPDF joins the plain text of every page, mirroring
// kadirpekel-hector's PDFParser.Parse.
func extractPDF(data []byte) string {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ""
	}
	var parts []string
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// extractDocx extracts body text, mirroring kadirpekel-hector's
// OfficeParser.parseWordDocument. The nguyenthenguyen/docx API reads
// from a file path, so the bytes are spooled to a scratch temp file
// first, mirroring what that library always requires.
func extractDocx(data []byte) string {
	path, cleanup, err := spoolTempFile("claimflow-docx-*.docx", data)
	if err != nil {
		return ""
	}
	defer cleanup()

	doc, err := docx.ReadDocxFile(path)
	if err != nil {
		return ""
	}
	defer doc.Close()
	return doc.Editable().GetContent()
}

// extractXLSX joins cell text per sheet, mirroring kadirpekel-hector's
// OfficeParser.parseExcelDocument, bounded the same way (first 1000 cells
// per sheet) to avoid unbounded content from large spreadsheets.
func extractXLSX(data []byte) string {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	defer f.Close()

	var parts []string
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("--- Sheet: %s ---\n", sheetName))
		cellCount := 0
		for rowIndex, row := range rows {
			if cellCount >= 1000 {
				break
			}
			for colIndex, cell := range row {
				if cellCount >= 1000 {
					break
				}
				if text := strings.TrimSpace(cell); text != "" {
					sb.WriteString(fmt.Sprintf("R%dC%d: %s\n", rowIndex+1, colIndex+1, text))
					cellCount++
				}
			}
		}
		if text := strings.TrimSpace(sb.String()); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// bestEffortPlainText returns data as text only when it looks like text
// (no NUL bytes), otherwise empty — "other document types → best-effort
// plain text (no error on failure, empty string)" per spec §4.4 step 1.
func bestEffortPlainText(data []byte) string {
	if bytes.IndexByte(data, 0) != -1 {
		return ""
	}
	return string(data)
}

func spoolTempFile(pattern string, data []byte) (path string, cleanup func(), err error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", nil, err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		os.Remove(f.Name())
		return "", nil, err
	}
	return f.Name(), func() { os.Remove(f.Name()) }, nil
}

// Raw is one newly received attachment awaiting description.
type Raw struct {
	Filename string
	Bytes    []byte
}

var describeSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"attachment_details": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":    map[string]any{"type": "string"},
					"details": map[string]any{"type": "string"},
				},
				"required": []string{"name", "details"},
			},
		},
	},
	"required": []string{"attachment_details"},
}

// Describe builds the LLM request of spec §4.4 steps 2-3 (a text block
// per non-empty extraction, an image block per photo, a strict
// attachment_details schema) and returns filename -> description.
// An LLM failure never aborts the caller: on failure every attachment
// maps to an empty description rather than an error, per spec §4.4's
// failure policy. masker
// may be nil; extracted text is run through it before it ever reaches a
// debug log, since an OCR'd document routinely contains the same PII a
// claimant's own message would.
func Describe(ctx context.Context, client *llmclient.Client, attachments []Raw, masker *masking.Service) map[string]string {
	out := make(map[string]string, len(attachments))
	if len(attachments) == 0 {
		return out
	}

	var blocks []llmclient.ContentBlock
	for _, a := range attachments {
		text := ExtractText(a.Filename, a.Bytes)
		slog.Debug("attachment: extracted text", "filename", a.Filename, "text", masker.Mask(text))
		if text != "" {
			blocks = append(blocks, llmclient.TextBlock(fmt.Sprintf("%s:\n%s", a.Filename, text)))
		}
		if mime, ok := imageExtensions[extOf(a.Filename)]; ok {
			blocks = append(blocks, llmclient.ImageBlock(mime, a.Bytes))
		}
	}
	if len(blocks) == 0 {
		for _, a := range attachments {
			out[a.Filename] = ""
		}
		return out
	}

	system := "Describe each attached claim document or photo in one or two sentences. " +
		"Identify the attachment by its filename."
	result, err := client.Respond(ctx, system, blocks, "attachment_details", describeSchema)
	if err != nil {
		for _, a := range attachments {
			out[a.Filename] = ""
		}
		return out
	}

	details, _ := result["attachment_details"].([]any)
	for _, raw := range details {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name, _ := entry["name"].(string)
		desc, _ := entry["details"].(string)
		out[name] = desc
	}
	for _, a := range attachments {
		if _, ok := out[a.Filename]; !ok {
			out[a.Filename] = ""
		}
	}
	return out
}
