package pdf

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var reNewlines = regexp.MustCompile(`\n{3,}`)

// ExtractText converts PDF bytes to plain text with poppler's pdftotext.
func ExtractText(ctx context.Context, input []byte, timeout time.Duration) ([]byte, error) {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return nil, fmt.Errorf("pdftotext not found in PATH: %w", err)
	}

	tmpDir, err := os.MkdirTemp("", "pdfextract-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	pdfPath := filepath.Join(tmpDir, "input.pdf")
	if err := os.WriteFile(pdfPath, input, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write temp PDF: %w", err)
	}

	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "pdftotext", "-enc", "UTF-8", "-eol", "unix", "-nopgbrk", "-q", pdfPath, "-")
	cmd.Env = append(os.Environ(), "LANG=C.UTF-8", "LC_ALL=C.UTF-8")

	out, err := cmd.Output()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("pdftotext: %w", ctx.Err())
	}
	if err != nil {
		var stderr []byte
		if exitErr, ok := err.(*exec.ExitError); ok {
			stderr = bytes.TrimSpace(exitErr.Stderr)
		}
		return nil, fmt.Errorf("pdftotext failed: %w: %s", err, stderr)
	}

	return []byte(CleanText(string(out))), nil
}

// CleanText trims the text and limits blank line runs to one empty line.
func CleanText(text string) string {
	text = strings.TrimSpace(text)
	text = reNewlines.ReplaceAllString(text, "\n\n")
	if text != "" {
		text += "\n"
	}
	return text
}

// IsPDF sniffs the PDF magic number.
func IsPDF(b []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(b, " \t\r\n"), []byte("%PDF-"))
}
