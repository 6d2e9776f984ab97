package ingestapi

import (
	"mime"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

var (
	channelGroupPattern  = regexp.MustCompile(`(ch\d+-\d+)`)
	segmentNumberPattern = regexp.MustCompile(`(?i)seg(?:ment)?[-_]?(\d+)`)
)

// legacyCharsets maps the charset tokens that show up in a
// filename*=CHARSET'lang'value RFC 5987 parameter to the x/text decoder that
// understands them. mime.ParseMediaType only decodes us-ascii and utf-8
// itself, so anything else (commonly Latin-1 from older Windows clients)
// falls through to here.
var legacyCharsets = map[string]*charmap.Charmap{
	"iso-8859-1":  charmap.ISO8859_1,
	"windows-1252": charmap.Windows1252,
}

// filenameFromContentDisposition extracts the filename carried by a
// Content-Disposition header, decoding an RFC 5987 filename* parameter with
// a legacy charset if present. Returns "" if the header is absent or
// unparseable.
func filenameFromContentDisposition(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}

	if name := extendedFilename(header); name != "" {
		return name
	}

	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}

// extendedFilename handles filename*=CHARSET'LANG'percent-encoded-value
// directly, since Go's mime package rejects the whole header when the
// charset isn't us-ascii or utf-8.
func extendedFilename(header string) string {
	const marker = "filename*="
	idx := strings.Index(strings.ToLower(header), marker)
	if idx < 0 {
		return ""
	}
	rest := header[idx+len(marker):]
	if end := strings.IndexByte(rest, ';'); end >= 0 {
		rest = rest[:end]
	}
	rest = strings.TrimSpace(rest)
	rest = strings.Trim(rest, `"`)

	parts := strings.SplitN(rest, "'", 3)
	if len(parts) != 3 {
		return ""
	}
	charset := strings.ToLower(strings.TrimSpace(parts[0]))
	encoded := parts[2]

	decoded, err := percentDecode(encoded)
	if err != nil {
		return ""
	}

	switch charset {
	case "", "us-ascii", "utf-8":
		return string(decoded)
	}
	if cm, ok := legacyCharsets[charset]; ok {
		out, err := cm.NewDecoder().Bytes(decoded)
		if err == nil {
			return string(out)
		}
	}
	return string(decoded)
}

func percentDecode(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%':
			if i+2 >= len(s) {
				out = append(out, s[i])
				continue
			}
			b, err := strconv.ParseUint(s[i+1:i+3], 16, 8)
			if err != nil {
				out = append(out, s[i])
				continue
			}
			out = append(out, byte(b))
			i += 2
		default:
			out = append(out, s[i])
		}
	}
	return out, nil
}

// channelGroupFromFilename pulls a "chAA-BB" token out of name, per spec
// §4.1: "…(ch\d+-\d+)….(wav|flac)".
func channelGroupFromFilename(name string) (string, bool) {
	m := channelGroupPattern.FindStringSubmatch(name)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// segmentNumberFromFilename pulls a "segNNNN"-shaped token out of name.
func segmentNumberFromFilename(name string) (int, bool) {
	m := segmentNumberPattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
