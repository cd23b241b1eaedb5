package ole

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/richardlehane/mscfb"
)

// ErrMalformedOLE is returned when no embedded image can be located.
var ErrMalformedOLE = errors.New("malformed OLE object")

const (
	accessSignature = 0x1C15
	ole1Version     = 0x0501
	formatEmbedded  = 2
	maxNameLen      = 1 << 16
)

var compoundSignature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// Object is the decoded outer structure of an OLE field.
type Object struct {
	// Name is the display name from the Access header, if present.
	Name string
	// Class is the OLE1 class name, e.g. "PBrush", "Paint.Picture" or "Package".
	Class string
	// Native is the native data of an embedded object.
	Native []byte
}

// UnwrapImage returns the encoded image embedded in an OLE object field.
// Data that already starts with a known image signature is returned as is.
func UnwrapImage(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty field", ErrMalformedOLE)
	}
	if kind, _ := sniff(b); kind != "" {
		return trimToSize(kind, b), nil
	}

	payload := b
	if obj, err := Parse(b); err == nil {
		payload = obj.Native
		if obj.Class == "Package" {
			if data, err := unpackPackage(payload); err == nil {
				payload = data
			}
		}
	}

	if bytes.HasPrefix(payload, compoundSignature) {
		if data, err := searchCompound(payload); err == nil {
			payload = data
		}
	}

	img := locateImage(payload)
	if img == nil && len(payload) != len(b) {
		img = locateImage(b)
	}
	if img == nil {
		return nil, fmt.Errorf("%w: no image signature found", ErrMalformedOLE)
	}
	return img, nil
}

// Describe reports the class of an OLE field for diagnostics.
func Describe(b []byte) string {
	if kind, _ := sniff(b); kind != "" {
		return "raw " + kind
	}
	if bytes.HasPrefix(b, compoundSignature) {
		return "compound document"
	}
	obj, err := Parse(b)
	if err != nil {
		return "unknown"
	}
	if obj.Name != "" {
		return fmt.Sprintf("%s (%s)", obj.Class, obj.Name)
	}
	return obj.Class
}

// Parse decodes the Access OLE header, when present, and the OLE1
// embedded-object stream that follows it.
func Parse(b []byte) (*Object, error) {
	obj := &Object{}
	stream := b

	if len(b) >= 20 && binary.LittleEndian.Uint16(b) == accessSignature {
		headerSize := int(binary.LittleEndian.Uint16(b[2:]))
		nameLen := int(binary.LittleEndian.Uint16(b[8:]))
		nameOff := int(binary.LittleEndian.Uint16(b[12:]))
		if headerSize < 20 || headerSize > len(b) {
			return nil, fmt.Errorf("%w: header size %d", ErrMalformedOLE, headerSize)
		}
		if nameLen > 0 && nameOff+nameLen <= headerSize {
			obj.Name = cString(b[nameOff : nameOff+nameLen])
		}
		stream = b[headerSize:]
	}

	r := bytes.NewReader(stream)
	var version, format uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOLE, err)
	}
	if version&0xFFFF != ole1Version {
		return nil, fmt.Errorf("%w: version %#x", ErrMalformedOLE, version)
	}
	if err := binary.Read(r, binary.LittleEndian, &format); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOLE, err)
	}
	if format != formatEmbedded {
		return nil, fmt.Errorf("%w: format id %d is not embedded", ErrMalformedOLE, format)
	}

	class, err := lengthPrefixed(r)
	if err != nil {
		return nil, err
	}
	obj.Class = cString(class)
	// topic and item names
	for i := 0; i < 2; i++ {
		if _, err := lengthPrefixed(r); err != nil {
			return nil, err
		}
	}

	native, err := lengthPrefixed(r)
	if err != nil {
		return nil, err
	}
	obj.Native = native
	return obj, nil
}

func lengthPrefixed(r *bytes.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOLE, err)
	}
	if int64(n) > int64(r.Len()) {
		return nil, fmt.Errorf("%w: length %d exceeds %d remaining bytes", ErrMalformedOLE, n, r.Len())
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOLE, err)
	}
	return buf, nil
}

// unpackPackage extracts the file contents from "Package" native data:
// a 2-byte marker, label, source path, two reserved words, the temp path
// and finally the length-prefixed file data.
func unpackPackage(native []byte) ([]byte, error) {
	r := bytes.NewReader(native)
	var marker uint16
	if err := binary.Read(r, binary.LittleEndian, &marker); err != nil || marker != 2 {
		return nil, fmt.Errorf("%w: not a package", ErrMalformedOLE)
	}
	for i := 0; i < 2; i++ {
		if err := skipCString(r); err != nil {
			return nil, err
		}
	}
	if _, err := r.Seek(4, io.SeekCurrent); err != nil {
		return nil, err
	}
	if _, err := lengthPrefixed(r); err != nil {
		return nil, err
	}
	return lengthPrefixed(r)
}

func skipCString(r *bytes.Reader) error {
	for n := 0; n < maxNameLen; n++ {
		c, err := r.ReadByte()
		if err != nil {
			return fmt.Errorf("%w: unterminated string", ErrMalformedOLE)
		}
		if c == 0 {
			return nil
		}
	}
	return fmt.Errorf("%w: string too long", ErrMalformedOLE)
}

// searchCompound walks an OLE2 compound document and returns the first
// stream that holds an image.
func searchCompound(b []byte) ([]byte, error) {
	doc, err := mscfb.New(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOLE, err)
	}

	for entry, err := doc.Next(); err == nil; entry, err = doc.Next() {
		if entry.Size <= 0 {
			continue
		}
		data := make([]byte, entry.Size)
		if _, err := io.ReadFull(entry, data); err != nil {
			continue
		}

		switch entry.Name {
		case "\x01Ole10Native":
			if len(data) > 4 {
				size := int(binary.LittleEndian.Uint32(data))
				if size <= len(data)-4 {
					data = data[4 : 4+size]
				}
			}
		case "CONTENTS", "Package":
		default:
			if kind, _ := sniff(data); kind == "" {
				continue
			}
		}
		if img := locateImage(data); img != nil {
			return img, nil
		}
	}
	return nil, fmt.Errorf("%w: no image stream in compound document", ErrMalformedOLE)
}

var signatures = []struct {
	kind  string
	magic []byte
}{
	{"png", []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}},
	{"jpeg", []byte{0xFF, 0xD8, 0xFF}},
	{"gif", []byte("GIF87a")},
	{"gif", []byte("GIF89a")},
	{"tiff", []byte{'I', 'I', 0x2A, 0x00}},
	{"tiff", []byte{'M', 'M', 0x00, 0x2A}},
	{"bmp", []byte("BM")},
}

// sniff reports the image kind that b starts with.
func sniff(b []byte) (string, bool) {
	for _, s := range signatures {
		if bytes.HasPrefix(b, s.magic) {
			if s.kind == "bmp" && !plausibleBMP(b) {
				continue
			}
			return s.kind, true
		}
	}
	return "", false
}

// locateImage returns the suffix of b starting at the earliest image
// signature, or nil.
func locateImage(b []byte) []byte {
	for i := 0; i < len(b); i++ {
		if kind, ok := sniff(b[i:]); ok {
			return trimToSize(kind, b[i:])
		}
	}
	return nil
}

// plausibleBMP validates the file and info header fields after a "BM" marker.
func plausibleBMP(b []byte) bool {
	if len(b) < 26 {
		return false
	}
	size := binary.LittleEndian.Uint32(b[2:])
	offset := binary.LittleEndian.Uint32(b[10:])
	infoSize := binary.LittleEndian.Uint32(b[14:])
	if size < 26 || offset < 26 || offset >= size {
		return false
	}
	switch infoSize {
	case 12, 40, 52, 56, 64, 108, 124:
		return true
	}
	return false
}

func trimToSize(kind string, b []byte) []byte {
	if kind != "bmp" {
		return b
	}
	size := int(binary.LittleEndian.Uint32(b[2:]))
	if size > 0 && size <= len(b) {
		return b[:size]
	}
	return b
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
