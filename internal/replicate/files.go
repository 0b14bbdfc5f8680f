package replicate

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/MimeLyc/ytscribe/pkg/log"
)

// InlineFileLimit is the largest file passed inline as a data URI, larger files are uploaded.
const InlineFileLimit = 256 << 10

// File is an upload as returned by the files API.
type File struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	ContentType string   `json:"content_type"`
	Size        int64    `json:"size"`
	URLs        FileURLs `json:"urls"`
}

type FileURLs struct {
	Get string `json:"get"`
}

// FileInput returns the value of a file input for path: a data URI for small files,
// otherwise the URL of an upload.
func (c *Client) FileInput(ctx context.Context, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", path, err)
	}
	if info.Size() <= c.inlineLimit {
		return FileDataURI(path)
	}

	file, err := c.UploadFile(ctx, path)
	if err != nil {
		return "", err
	}
	if file.URLs.Get == "" {
		return "", fmt.Errorf("upload of %s returned no URL", path)
	}
	log.Info("Uploaded %s (%d bytes) as file %s", path, info.Size(), file.ID)
	return file.URLs.Get, nil
}

// UploadFile streams path to the files API as multipart form data.
func (c *Client) UploadFile(ctx context.Context, path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeFilePart(mw, f, filepath.Base(path)))
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/files", pr)
	if err != nil {
		_ = pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var file File
	if err := c.do(c.uploadClient, req, &file); err != nil {
		return nil, fmt.Errorf("upload %s: %w", path, err)
	}
	return &file, nil
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func writeFilePart(mw *multipart.Writer, r io.Reader, name string) error {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="content"; filename="%s"`, quoteEscaper.Replace(name)))
	header.Set("Content-Type", contentTypeFromExtension(name))

	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, r); err != nil {
		return err
	}
	return mw.Close()
}

// FileDataURI reads path and encodes it as a data: URI, the inline form of a file input.
func FileDataURI(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", path, err)
	}

	return "data:" + contentTypeFromExtension(path) + ";base64," +
		base64.StdEncoding.EncodeToString(content), nil
}

func contentTypeFromExtension(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	case ".wav":
		return "audio/wav"
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".flac":
		return "audio/flac"
	case ".webm":
		return "audio/webm"
	default:
		return "application/octet-stream"
	}
}
