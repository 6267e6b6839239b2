// Package chunk splits files into fixed-size byte ranges for proxied
// transfer, encodes them to a transport-safe base64 representation, and
// reassembles downloaded parts back into the original file.
package chunk

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// DefaultSize is the default chunk size for proxied chunked uploads.
const DefaultSize = 2 << 20 // 2 MiB

// Chunk is one contiguous byte range of a file being transferred.
type Chunk struct {
	ResourceID string
	Index      int
	Total      int
	Data       []byte
}

// IsLast reports whether this is the final chunk of its parent file.
func (c Chunk) IsLast() bool {
	return c.Index == c.Total-1
}

// Split partitions data into sequential non-overlapping chunks of at most
// size bytes. The final chunk may be shorter. Empty input yields a single
// empty chunk so that Total is always >= 1.
func Split(resourceID string, data []byte, size int) ([]Chunk, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}

	total := (len(data) + size - 1) / size
	if total == 0 {
		total = 1
	}

	chunks := make([]Chunk, 0, total)
	for i := 0; i < total; i++ {
		start := i * size
		end := start + size
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, Chunk{
			ResourceID: resourceID,
			Index:      i,
			Total:      total,
			Data:       data[start:end],
		})
	}

	return chunks, nil
}

// Encode returns the transport-safe base64 representation of the chunk's
// byte range.
func Encode(c Chunk) string {
	return base64.StdEncoding.EncodeToString(c.Data)
}

// Decode decodes a base64 chunk payload back to raw bytes. A data-URL
// prefix ("data:<mime>;base64,") is stripped if present.
func Decode(encoded string) ([]byte, error) {
	if strings.HasPrefix(encoded, "data:") {
		if idx := strings.Index(encoded, ","); idx >= 0 {
			encoded = encoded[idx+1:]
		}
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding chunk payload: %w", err)
	}
	return data, nil
}

// Reassemble concatenates part payloads in the order supplied. Callers
// must sort parts ascending by index before calling; see SortByIndex and
// ParsePartIndex.
func Reassemble(parts [][]byte) []byte {
	var size int
	for _, p := range parts {
		size += len(p)
	}

	out := make([]byte, 0, size)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// ReassembleEncoded decodes each base64 part and concatenates the results
// in the order supplied.
func ReassembleEncoded(encoded []string) ([]byte, error) {
	parts := make([][]byte, 0, len(encoded))
	for i, e := range encoded {
		data, err := Decode(e)
		if err != nil {
			return nil, fmt.Errorf("part %d: %w", i, err)
		}
		parts = append(parts, data)
	}
	return Reassemble(parts), nil
}

// SortByIndex orders chunks ascending by sequence index in place.
func SortByIndex(chunks []Chunk) {
	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].Index < chunks[j].Index
	})
}

// partPattern matches the "_part<N>_" convention used for chunk object
// names, e.g. "file_1712...._a1b2c3d4_part3_survey.tif".
var partPattern = regexp.MustCompile(`_part(\d+)_`)

// PartFileName returns the storage file name for one chunk of fileName,
// following the "<resourceId>_part<N>_<fileName>" convention.
func PartFileName(resourceID, fileName string, index int) string {
	return fmt.Sprintf("%s_part%d_%s", resourceID, index, fileName)
}

// ParsePartIndex extracts the zero-based part index from a chunk file name.
// It reports false when the name does not follow the part convention.
func ParsePartIndex(fileName string) (int, bool) {
	m := partPattern.FindStringSubmatch(fileName)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// IsPartOf reports whether fileName names a chunk belonging to the given
// resource, judged by the part filename convention.
func IsPartOf(fileName, resourceID string) bool {
	return resourceID != "" && strings.Contains(fileName, resourceID+"_part")
}
