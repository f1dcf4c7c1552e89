package types

import (
	"encoding/base64"
	"errors"
	"strings"
)

// MaxSignatureBytes caps the encoded size of a signature data URI.
const MaxSignatureBytes = 512 * 1024

var (
	ErrSignatureEmpty    = errors.New("signature is empty")
	ErrSignatureTooLarge = errors.New("signature exceeds size limit")
	ErrSignatureFormat   = errors.New("signature must be a base64 png or jpeg data uri")
)

var signatureMediaTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/jpg":  {},
}

// ImageDataURI is a decoded raster image embedded as a data URI.
type ImageDataURI struct {
	MediaType string
	Data      []byte
}

// ParseSignature validates a `data:image/(png|jpeg);base64,...` URI and decodes it.
func ParseSignature(raw string) (ImageDataURI, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ImageDataURI{}, ErrSignatureEmpty
	}
	if len(raw) > MaxSignatureBytes {
		return ImageDataURI{}, ErrSignatureTooLarge
	}
	rest, ok := strings.CutPrefix(raw, "data:")
	if !ok {
		return ImageDataURI{}, ErrSignatureFormat
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return ImageDataURI{}, ErrSignatureFormat
	}
	mediaType, encoding, ok := strings.Cut(header, ";")
	if !ok || !strings.EqualFold(encoding, "base64") {
		return ImageDataURI{}, ErrSignatureFormat
	}
	mediaType = strings.ToLower(mediaType)
	if _, ok := signatureMediaTypes[mediaType]; !ok {
		return ImageDataURI{}, ErrSignatureFormat
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil || len(data) == 0 {
		return ImageDataURI{}, ErrSignatureFormat
	}
	return ImageDataURI{MediaType: mediaType, Data: data}, nil
}

// IsValidSignature reports whether raw would be rendered as an image.
func IsValidSignature(raw string) bool {
	_, err := ParseSignature(raw)
	return err == nil
}
