// Package codec converts between raw image bytes, data URIs and blob handles.
// Everything here is pure: no I/O and no shared state.
package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ErrMalformedEncoding is returned when a data URI cannot be decoded.
var ErrMalformedEncoding = errors.New("malformed data uri encoding")

const (
	dataScheme   = "data:"
	base64Marker = ";base64"
)

// Blob is an opaque handle to encoded bytes and their sniffed MIME type.
type Blob struct {
	Data []byte
	MIME string
}

// NewBlob wraps data, sniffing its MIME type from the content.
func NewBlob(data []byte) Blob {
	return Blob{Data: data, MIME: DetectMIME(data)}
}

// URL returns the presentation URL for the blob.
func (b Blob) URL() string {
	return BlobToPresentationURL(b.Data)
}

// DetectMIME sniffs the media type of data. Parameters are kept but
// normalized so the result can be embedded in a data URI header.
func DetectMIME(data []byte) string {
	mt := mimetype.Detect(data).String()
	return strings.ReplaceAll(mt, " ", "")
}

// BlobToPresentationURL returns a data URI carrying data. The URL is only
// meaningful inside the running process; it is never persisted as a
// reference to remote content.
func BlobToPresentationURL(data []byte) string {
	var sb strings.Builder
	payload := base64.StdEncoding.EncodeToString(data)
	mt := DetectMIME(data)
	sb.Grow(len(dataScheme) + len(mt) + len(base64Marker) + 1 + len(payload))
	sb.WriteString(dataScheme)
	sb.WriteString(mt)
	sb.WriteString(base64Marker)
	sb.WriteByte(',')
	sb.WriteString(payload)
	return sb.String()
}

// DataURIToBytes decodes a base64 data URI produced by BlobToPresentationURL
// (or any other producer following the same scheme).
func DataURIToBytes(uri string) ([]byte, error) {
	_, data, err := parseDataURI(uri)
	return data, err
}

// MIMEOf returns the media type declared in a data URI header.
func MIMEOf(uri string) (string, error) {
	mt, _, err := parseDataURI(uri)
	return mt, err
}

func parseDataURI(uri string) (string, []byte, error) {
	if !strings.HasPrefix(uri, dataScheme) {
		return "", nil, fmt.Errorf("%w: missing %q scheme", ErrMalformedEncoding, dataScheme)
	}
	header, payload, ok := strings.Cut(uri[len(dataScheme):], ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing payload separator", ErrMalformedEncoding)
	}
	if !strings.HasSuffix(header, base64Marker) {
		return "", nil, fmt.Errorf("%w: payload is not base64", ErrMalformedEncoding)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedEncoding, err)
	}
	mt, _, _ := strings.Cut(strings.TrimSuffix(header, base64Marker), ";")
	return mt, data, nil
}

// LooksLikeImageData reports whether candidate can be turned into an image
// presentation URL. It accepts raw bytes, blobs and data URI strings; any
// other value, including plain strings left over from an earlier process, is
// reported as false.
func LooksLikeImageData(candidate any) bool {
	switch v := candidate.(type) {
	case []byte:
		return isImageBytes(v)
	case Blob:
		return isImageBytes(v.Data)
	case *Blob:
		return v != nil && isImageBytes(v.Data)
	case string:
		data, err := DataURIToBytes(v)
		if err != nil {
			return false
		}
		return isImageBytes(data)
	default:
		return false
	}
}

func isImageBytes(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	return strings.HasPrefix(DetectMIME(data), "image/")
}
