package wechat

import (
	"bytes"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/klauspost/compress/zstd"

	"github.com/harvester-dev/harvester/internal/model"
)

// zstdMagic is the streaming-compressor's magic byte prefix (spec §4.3).
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// decoderOnce/sharedDecoder implement the "global/singleton decompressor"
// design note (spec §9): the reference implementation caches a decompressor
// instance for the life of the process. zstd.Decoder is safe for
// concurrent use by multiple goroutines as long as callers don't share a
// single DecodeAll buffer, so one process-wide instance is sufficient.
var (
	decoderOnce   sync.Once
	sharedDecoder *zstd.Decoder
	decoderErr    error
)

func getDecoder() (*zstd.Decoder, error) {
	decoderOnce.Do(func() {
		sharedDecoder, decoderErr = zstd.NewReader(nil)
	})
	return sharedDecoder, decoderErr
}

// Row is the raw shape of a per-chat table record (C5's toRow fills it
// from the WCDB-v4 column names before handing it to DecodeRow; the
// legacy MSG schema is not read).
type Row struct {
	LocalID       int64
	ServerID      int64
	RawType       int64
	SenderID      string
	CreateTime    int64 // epoch seconds
	Status        int64
	Content       string // TEXT payload, if present
	CompressFlag  int64
	ContentHex    string // hex-encoded BLOB payload, used when CompressFlag != 0
	ContactHash   string
	LocalIDForRef int64 // not set by toRow; media paths are resolved from LocalID
}

// DecodeRow decodes a single chat-table row into a neutral Message. It
// never returns an error for a single bad row: on unrecoverable decode
// failure for a row whose kind should otherwise be kept, it degrades to a
// placeholder per spec §4.3; rows of unrecognised kind are signalled via
// ok=false so the caller drops them.
func DecodeRow(r Row) (msg model.Message, ok bool) {
	content := r.Content

	if r.CompressFlag != 0 && r.ContentHex != "" {
		if decoded, decompErr := decompressHexPayload(r.ContentHex); decompErr == nil {
			content = decoded
		} else if kindOf(r.RawType) == 1 {
			content = "[compressed text]"
		} else {
			return model.Message{}, false
		}
	}

	role := model.RoleAssistant
	if r.Status == 3 {
		role = model.RoleUser
	}

	ts := time.Unix(r.CreateTime, 0).UTC()

	msg = model.Message{
		Role:      role,
		Timestamp: ts,
	}

	switch kindOf(r.RawType) {
	case 1:
		msg.Content = content
		msg.ContentType = model.ContentText
	case 3:
		msg.Content = "[image]"
		msg.ContentType = model.ContentImage
		msg.Media = []model.MediaRef{{Type: model.MediaImage}}
	case 34:
		msg.Content = "[voice]"
		msg.ContentType = model.ContentAudio
		msg.Media = []model.MediaRef{{Type: model.MediaVoice}}
	case 43:
		msg.Content = "[video]"
		msg.ContentType = model.ContentVideo
		msg.Media = []model.MediaRef{{Type: model.MediaVideo}}
	case 47:
		msg.Content = "[sticker]"
		msg.ContentType = model.ContentSticker
	case 48:
		msg.Content = "[location]"
		msg.ContentType = model.ContentLocation
	case 49:
		text, media := decodeAppMsg(content)
		msg.Content = text
		msg.ContentType = model.ContentLink
		if media != nil {
			msg.Media = []model.MediaRef{*media}
		}
	case 10000, 10002:
		msg.Content = content
		msg.ContentType = model.ContentText
	default:
		return model.Message{}, false
	}

	return msg, true
}

func kindOf(rawType int64) int64 {
	return rawType & 0xFFFF
}

func decompressHexPayload(hexPayload string) (string, error) {
	raw, err := hex.DecodeString(hexPayload)
	if err != nil {
		return "", fmt.Errorf("decode hex payload: %w", err)
	}
	if !bytes.HasPrefix(raw, zstdMagic) {
		return "", fmt.Errorf("payload does not begin with zstd magic")
	}
	dec, err := getDecoder()
	if err != nil {
		return "", err
	}
	out, err := dec.DecodeAll(raw, nil)
	if err != nil {
		return "", fmt.Errorf("zstd decode: %w", err)
	}
	return toValidUTF8(out), nil
}

// toValidUTF8 mirrors the reference decoder's "lossy replacement for
// invalid bytes" behaviour.
func toValidUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	var sb strings.Builder
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		sb.WriteRune(r)
		b = b[size:]
	}
	return sb.String()
}

// appMsg models the subset of the kind=49 XML fragment's <appmsg> element
// that the dispatch table in spec §4.3 cares about.
type appMsg struct {
	XMLName xml.Name `xml:"msg"`
	AppMsg  struct {
		Type     int    `xml:"type"`
		Title    string `xml:"title"`
		AppAttach struct {
			TotalLen  int64  `xml:"totallen"`
			FileName  string `xml:"filename"`
		} `xml:"appattach"`
	} `xml:"appmsg"`
}

var titleFallbackRE = regexp.MustCompile(`<title>(.*?)</title>`)

// decodeAppMsg implements the kind=49 markup decode table (spec §4.3). The
// payload may be prefixed with "<id>:\n" which must be stripped before
// parsing.
func decodeAppMsg(payload string) (string, *model.MediaRef) {
	payload = stripIDPrefix(payload)

	var m appMsg
	if err := xml.Unmarshal([]byte(payload), &m); err != nil {
		if match := titleFallbackRE.FindStringSubmatch(payload); match != nil {
			return fmt.Sprintf("[link: %s]", match[1]), &model.MediaRef{Type: model.MediaLink, Filename: match[1]}
		}
		return "[link/file]", nil
	}

	title := m.AppMsg.Title

	switch m.AppMsg.Type {
	case 6:
		size := m.AppMsg.AppAttach.TotalLen
		name := m.AppMsg.AppAttach.FileName
		if name == "" {
			name = title
		}
		return fmt.Sprintf("[file: %s (%s)]", name, formatSize(size)),
			&model.MediaRef{Type: model.MediaFile, Filename: name, SizeBytes: size}
	case 5:
		return fmt.Sprintf("[link: %s]", title), &model.MediaRef{Type: model.MediaLink, Filename: title}
	case 33, 36:
		return fmt.Sprintf("[mini_program: %s]", title), &model.MediaRef{Type: model.MediaMiniProgram, Filename: title}
	case 57:
		snippet := extractQuoteSnippet(payload)
		return fmt.Sprintf("%s\n[quote: %s]", title, truncateRunes(snippet, 80)), nil
	case 19:
		return fmt.Sprintf("[chat_history: %s]", title), nil
	case 4:
		return fmt.Sprintf("[music: %s]", title), &model.MediaRef{Type: model.MediaLink, Filename: title}
	case 51:
		return fmt.Sprintf("[video_channel: %s]", title), &model.MediaRef{Type: model.MediaLink, Filename: title}
	case 87:
		return fmt.Sprintf("[announcement: %s]", title), nil
	case 2000:
		return "[transfer]", nil
	case 2001:
		return "[red_packet]", nil
	case 53:
		return "[group_call]", nil
	default:
		if title != "" {
			return fmt.Sprintf("[link: %s]", title), &model.MediaRef{Type: model.MediaLink, Filename: title}
		}
		return "[link/file]", nil
	}
}

func stripIDPrefix(payload string) string {
	if idx := strings.Index(payload, ":\n"); idx >= 0 && idx < 64 {
		prefix := payload[:idx]
		allDigits := prefix != ""
		for _, r := range prefix {
			if r < '0' || r > '9' {
				allDigits = false
				break
			}
		}
		if allDigits {
			return payload[idx+2:]
		}
	}
	return payload
}

// refer element used by kind=57 (quote) sub-messages.
type referMsg struct {
	Refer struct {
		Content string `xml:"content"`
	} `xml:"refermsg"`
}

func extractQuoteSnippet(payload string) string {
	var r referMsg
	if err := xml.Unmarshal([]byte(payload), &r); err == nil && r.Refer.Content != "" {
		return r.Refer.Content
	}
	return ""
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// formatSize renders a byte count in IEC-ish units with one decimal place,
// matching spec §4.3 ("B/KB/MB/GB with 1 decimal").
func formatSize(n int64) string {
	const unit = 1024.0
	units := []string{"B", "KB", "MB", "GB"}
	f := float64(n)
	idx := 0
	for f >= unit && idx < len(units)-1 {
		f /= unit
		idx++
	}
	if idx == 0 {
		return strconv.FormatInt(n, 10) + units[0]
	}
	return strconv.FormatFloat(f, 'f', 1, 64) + units[idx]
}
