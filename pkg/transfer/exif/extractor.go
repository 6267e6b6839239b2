// Package exif extracts geotagging metadata from drone survey imagery
// before upload: GPS coordinates, altitude, compass heading, camera model
// and capture time. Extraction never fails; any unreadable or untagged
// input simply yields no metadata.
package exif

import (
	"bytes"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	goexif "github.com/rwcarlsen/goexif/exif"
)

// Metadata is the geotag enrichment attached to an uploaded image. All
// numeric values are serialized as fixed-precision decimal strings so they
// survive numeric-typed storage downstream without float drift.
type Metadata struct {
	Latitude    string `json:"latitude,omitempty"`
	Longitude   string `json:"longitude,omitempty"`
	Altitude    string `json:"altitude,omitempty"`
	Heading     string `json:"heading,omitempty"`
	CameraMake  string `json:"cameraMake,omitempty"`
	CameraModel string `json:"cameraModel,omitempty"`
	CapturedAt  string `json:"capturedAt,omitempty"`
}

func (m *Metadata) empty() bool {
	return m.Latitude == "" && m.Longitude == "" && m.Altitude == "" &&
		m.Heading == "" && m.CameraMake == "" && m.CameraModel == "" &&
		m.CapturedAt == ""
}

// xmpField names one known vendor field: an XMP namespace prefix plus the
// local field name. Fallback chains are kept as data so adding a vendor is
// a one-line change.
type xmpField struct {
	Namespace string
	Name      string
}

func (f xmpField) key() string { return f.Namespace + ":" + f.Name }

// altitudeFallbacks is consulted in order when the standard EXIF
// GPSAltitude tag is absent. Absolute altitude is preferred over relative.
var altitudeFallbacks = []xmpField{
	{"drone-dji", "AbsoluteAltitude"},
	{"drone-dji", "RelativeAltitude"},
	{"Camera", "AboveGroundAltitude"},
	{"drone-parrot", "AboveGroundAltitude"},
	{"exif", "GPSAltitude"},
}

// headingFallbacks is consulted in order when the standard EXIF
// GPSImgDirection tag is absent. Covers the drone vendors seen in survey
// uploads; yaw fields outrank gimbal roll.
var headingFallbacks = []xmpField{
	{"drone-dji", "GimbalYawDegree"},
	{"drone-dji", "FlightYawDegree"},
	{"drone-dji", "GimbalRollDegree"},
	{"drone-dji", "FlightRollDegree"},
	{"drone-parrot", "CameraYawDegree"},
	{"drone-parrot", "DroneYawDegree"},
	{"Camera", "Yaw"},
	{"Camera", "GimbalYawDegree"},
	{"Camera", "Heading"},
	{"exif", "GPSImgDirection"},
	{"exif", "GPSDestBearing"},
	{"aux", "Yaw"},
	{"tiff", "CameraYaw"},
}

// headingHints drives the last-resort scan over all XMP keys when no
// known field name matched.
var headingHints = []string{"yaw", "direction", "heading", "bearing", "orient"}

// Extract parses EXIF and XMP tags from image bytes and returns the
// extracted metadata, or nil for non-image content, unreadable files, or
// images without any usable tags. It never returns an error.
func Extract(data []byte, contentType string) *Metadata {
	if !strings.HasPrefix(contentType, "image/") {
		return nil
	}

	meta := &Metadata{}

	if x, err := goexif.Decode(bytes.NewReader(data)); err == nil {
		extractStandard(x, meta)
	}

	fields := parseXMP(data)
	if meta.Altitude == "" {
		if v, ok := firstNumeric(fields, altitudeFallbacks); ok {
			meta.Altitude = formatFixed(v)
		}
	}
	if meta.Heading == "" {
		if v, ok := firstNumeric(fields, headingFallbacks); ok {
			meta.Heading = formatFixed(v)
		} else if v, ok := scanForHeading(fields); ok {
			meta.Heading = formatFixed(v)
		}
	}

	if meta.empty() {
		return nil
	}
	return meta
}

// extractStandard pulls the standard EXIF fields: GPS position, altitude,
// image direction, camera identity and capture time.
func extractStandard(x *goexif.Exif, meta *Metadata) {
	if lat, lng, err := x.LatLong(); err == nil {
		meta.Latitude = formatFixed(lat)
		meta.Longitude = formatFixed(lng)
	}

	if v, ok := rationalValue(x, goexif.GPSAltitude); ok {
		if ref, err := x.Get(goexif.GPSAltitudeRef); err == nil {
			if r, err := ref.Int(0); err == nil && r == 1 {
				v = -v
			}
		}
		meta.Altitude = formatFixed(v)
	}

	if v, ok := rationalValue(x, goexif.GPSImgDirection); ok {
		meta.Heading = formatFixed(v)
	}

	if tag, err := x.Get(goexif.Make); err == nil {
		if s, err := tag.StringVal(); err == nil {
			meta.CameraMake = strings.TrimSpace(s)
		}
	}
	if tag, err := x.Get(goexif.Model); err == nil {
		if s, err := tag.StringVal(); err == nil {
			meta.CameraModel = strings.TrimSpace(s)
		}
	}

	if ts, err := x.DateTime(); err == nil {
		meta.CapturedAt = ts.UTC().Format(time.RFC3339)
	}
}

func rationalValue(x *goexif.Exif, field goexif.FieldName) (float64, bool) {
	tag, err := x.Get(field)
	if err != nil {
		return 0, false
	}
	num, den, err := tag.Rat2(0)
	if err != nil || den == 0 {
		return 0, false
	}
	return float64(num) / float64(den), true
}

// firstNumeric returns the value of the first candidate field present in
// fields with a parseable numeric value.
func firstNumeric(fields map[string]string, candidates []xmpField) (float64, bool) {
	for _, f := range candidates {
		if raw, ok := fields[f.key()]; ok {
			if v, err := parseNumber(raw); err == nil {
				return v, true
			}
		}
	}
	return 0, false
}

// scanForHeading is the last resort: any XMP key containing a heading-like
// substring wins. Keys are visited in sorted order so the winner is stable
// when several candidates are present.
func scanForHeading(fields map[string]string) (float64, bool) {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		lower := strings.ToLower(key)
		for _, hint := range headingHints {
			if strings.Contains(lower, hint) {
				if v, err := parseNumber(fields[key]); err == nil {
					return v, true
				}
			}
		}
	}
	return 0, false
}

func parseNumber(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "+") // DJI writes "+12.30"
	return strconv.ParseFloat(raw, 64)
}

// formatFixed serializes a numeric value as a 6-decimal-place string.
func formatFixed(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// XMP packets live in the image header, so only the leading bytes are
// scanned.
const xmpScanLimit = 256 << 10

var (
	xmpAttrPattern = regexp.MustCompile(`([A-Za-z][\w-]*:[A-Za-z][\w-]*)\s*=\s*"([^"]*)"`)
	xmpElemPattern = regexp.MustCompile(`<([A-Za-z][\w-]*:[A-Za-z][\w-]*)>([^<]+)</`)
)

// parseXMP collects namespace-qualified key/value pairs from the XMP
// packet embedded in the image, accepting both attribute and element
// forms. Returns an empty map when no packet is present.
func parseXMP(data []byte) map[string]string {
	if len(data) > xmpScanLimit {
		data = data[:xmpScanLimit]
	}

	start := bytes.Index(data, []byte("<x:xmpmeta"))
	if start < 0 {
		return nil
	}
	packet := data[start:]
	if end := bytes.Index(packet, []byte("</x:xmpmeta>")); end >= 0 {
		packet = packet[:end]
	}

	fields := make(map[string]string)
	for _, m := range xmpAttrPattern.FindAllSubmatch(packet, -1) {
		key := string(m[1])
		if strings.HasPrefix(key, "xmlns:") {
			continue
		}
		if _, exists := fields[key]; !exists {
			fields[key] = string(m[2])
		}
	}
	for _, m := range xmpElemPattern.FindAllSubmatch(packet, -1) {
		key := string(m[1])
		if _, exists := fields[key]; !exists {
			fields[key] = string(m[2])
		}
	}
	return fields
}
