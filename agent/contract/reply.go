package contract

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ImageDirective asks the channel to deliver an image with a caption.
type ImageDirective struct {
	Type      string `json:"type"`
	ImagePath string `json:"image_path"`
	Text      string `json:"text"`
	HasImage  bool   `json:"has_image"`
}

// TextReply is the canonical form of anything a model or tool says to the user.
type TextReply struct {
	Text  string          `json:"text"`
	Image *ImageDirective `json:"image,omitempty"`
}

func (r TextReply) IsEmpty() bool {
	return strings.TrimSpace(r.Text) == "" && r.Image == nil
}

func (r TextReply) MessageType() MessageType {
	if r.Image != nil && r.Image.ImagePath != "" {
		return MessageTypeImage
	}
	return MessageTypeText
}

// HistoryText is what gets remembered for this reply.
func (r TextReply) HistoryText() string {
	if text := strings.TrimSpace(r.Text); text != "" {
		return text
	}
	if r.Image != nil {
		return strings.TrimSpace(r.Image.Text)
	}
	return ""
}

var sendImageMarker = regexp.MustCompile(`\[SEND_IMAGE:\s*([^\]]+)\]`)

// ExtractImageDirective pulls an image directive out of free text. It accepts
// the JSON directive (whole text or embedded object) and the [SEND_IMAGE:path]
// marker. The returned text has the directive removed.
func ExtractImageDirective(text string) (string, *ImageDirective) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", nil
	}

	if d, ok := parseDirective(trimmed); ok {
		return strings.TrimSpace(d.Text), d
	}

	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			if d, ok := parseDirective(trimmed[start : end+1]); ok {
				rest := strings.TrimSpace(trimmed[:start] + " " + trimmed[end+1:])
				if rest == "" {
					rest = strings.TrimSpace(d.Text)
				}
				return collapseSpaces(rest), d
			}
		}
	}

	if m := sendImageMarker.FindStringSubmatch(trimmed); m != nil {
		rest := collapseSpaces(sendImageMarker.ReplaceAllString(trimmed, " "))
		return rest, &ImageDirective{
			Type:      string(MessageTypeImage),
			ImagePath: strings.TrimSpace(m[1]),
			Text:      rest,
			HasImage:  true,
		}
	}

	return trimmed, nil
}

func parseDirective(raw string) (*ImageDirective, bool) {
	var d ImageDirective
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, false
	}
	if d.Type != string(MessageTypeImage) || strings.TrimSpace(d.ImagePath) == "" {
		return nil, false
	}
	d.HasImage = true
	return &d, true
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
