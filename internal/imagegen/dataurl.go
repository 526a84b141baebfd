package imagegen

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"
)

const defaultContentType = "image/png"

// Decode parses a data URI of the form data:<mime>;base64,<payload>.
// Media types are case-insensitive and come back lowercased. An empty
// payload is malformed, so zero-byte images do not survive Encode/Decode.
func Decode(wire string) (ImageRef, error) {
	wire = strings.TrimSpace(wire)
	rest, ok := strings.CutPrefix(wire, "data:")
	if !ok {
		return ImageRef{}, malformedf("missing data: scheme")
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return ImageRef{}, malformedf("missing payload separator")
	}
	mime, ok := strings.CutSuffix(header, ";base64")
	if !ok {
		return ImageRef{}, malformedf("payload is not base64 encoded")
	}
	mime = strings.TrimSpace(mime)
	if mime == "" || strings.Contains(mime, ";") {
		return ImageRef{}, malformedf("invalid media type %q", mime)
	}
	if payload == "" {
		return ImageRef{}, malformedf("empty payload")
	}
	data, err := decodeBase64(payload)
	if err != nil {
		return ImageRef{}, malformedf("decode payload: %v", err)
	}
	return ImageRef{Data: data, ContentType: strings.ToLower(mime)}, nil
}

func decodeBase64(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if strings.HasSuffix(payload, "=") || len(payload)%4 == 0 {
		return base64.StdEncoding.DecodeString(payload)
	}
	return base64.RawStdEncoding.DecodeString(payload)
}

// Encode renders ref as a data URI. It is total: the content type is written
// verbatim and empty data yields an empty payload, which Decode rejects.
func Encode(ref ImageRef) string {
	return EncodeBase64(base64.StdEncoding.EncodeToString(ref.Data), ref.ContentType)
}

// EncodeBase64 wraps an already encoded payload. An empty mime type falls
// back to image/png, which is what base64 provider envelopes carry.
func EncodeBase64(b64, mime string) string {
	mime = strings.TrimSpace(mime)
	if mime == "" {
		mime = defaultContentType
	}
	return "data:" + mime + ";base64," + b64
}

// Sniff builds an ImageRef whose content type is detected from the bytes.
// hint is used only when detection yields nothing more specific than
// application/octet-stream.
func Sniff(data []byte, hint string) ImageRef {
	detected := mimetype.Detect(data)
	ct := detected.String()
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	if ct == "application/octet-stream" || ct == "text/plain" {
		if h := strings.TrimSpace(hint); h != "" {
			ct = h
		}
	}
	return ImageRef{Data: data, ContentType: ct}
}

// Dimensions reports the pixel size of ref when its format is decodable.
func Dimensions(ref ImageRef) (int, int, bool) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(ref.Data))
	if err != nil {
		return 0, 0, false
	}
	return cfg.Width, cfg.Height, true
}

// Extension returns a file extension for the content type, including the dot.
func Extension(contentType string) string {
	if m := mimetype.Lookup(strings.ToLower(strings.TrimSpace(contentType))); m != nil && m.Extension() != "" {
		return m.Extension()
	}
	return ".bin"
}
