package event

// BaseMessage carries the fields shared by every m.room.message variant.
// Variants embed it by value.
type BaseMessage struct {
	MsgTypeField  string `json:"msgtype"`
	Body          string `json:"body"`
	Format        string `json:"format,omitempty"`
	FormattedBody string `json:"formatted_body,omitempty"`
}

func (m *BaseMessage) MsgType() string { return m.MsgTypeField }
func (*BaseMessage) EventContent()     {}

// Message msgtype discriminator values.
const (
	MsgText     = "m.text"
	MsgEmote    = "m.emote"
	MsgNotice   = "m.notice"
	MsgImage    = "m.image"
	MsgFile     = "m.file"
	MsgAudio    = "m.audio"
	MsgVideo    = "m.video"
	MsgLocation = "m.location"
)

// FileInfo describes an uploaded attachment.
type FileInfo struct {
	MimeType string `json:"mimetype,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Width    int    `json:"w,omitempty"`
	Height   int    `json:"h,omitempty"`
	Duration int64  `json:"duration,omitempty"`
}

// TextMessage is an m.text message.
type TextMessage struct {
	BaseMessage
}

// EmoteMessage is an m.emote message (/me action).
type EmoteMessage struct {
	BaseMessage
}

// NoticeMessage is an m.notice message (automated, not to be bridged back).
type NoticeMessage struct {
	BaseMessage
}

// ImageMessage is an m.image message.
type ImageMessage struct {
	BaseMessage
	URL  string    `json:"url,omitempty"`
	Info *FileInfo `json:"info,omitempty"`
}

// FileMessage is an m.file message.
type FileMessage struct {
	BaseMessage
	Filename string    `json:"filename,omitempty"`
	URL      string    `json:"url,omitempty"`
	Info     *FileInfo `json:"info,omitempty"`
}

// AudioMessage is an m.audio message.
type AudioMessage struct {
	BaseMessage
	URL  string    `json:"url,omitempty"`
	Info *FileInfo `json:"info,omitempty"`
}

// VideoMessage is an m.video message.
type VideoMessage struct {
	BaseMessage
	URL  string    `json:"url,omitempty"`
	Info *FileInfo `json:"info,omitempty"`
}

// LocationMessage is an m.location message.
type LocationMessage struct {
	BaseMessage
	GeoURI string `json:"geo_uri"`
}

// RawMessageContent is the generic fallback for unregistered msgtypes. The
// full content map is preserved for the caller.
type RawMessageContent map[string]interface{}

func (RawMessageContent) EventContent() {}

func (m RawMessageContent) MsgType() string {
	s, _ := m["msgtype"].(string)
	return s
}

// Body returns the plain-text body, if present.
func (m RawMessageContent) Body() string {
	s, _ := m["body"].(string)
	return s
}

// NewText builds a plain text message content.
func NewText(body string) *TextMessage {
	return &TextMessage{BaseMessage{MsgTypeField: MsgText, Body: body}}
}

// NewNotice builds an m.notice message content.
func NewNotice(body string) *NoticeMessage {
	return &NoticeMessage{BaseMessage{MsgTypeField: MsgNotice, Body: body}}
}

// NewEmote builds an m.emote message content.
func NewEmote(body string) *EmoteMessage {
	return &EmoteMessage{BaseMessage{MsgTypeField: MsgEmote, Body: body}}
}

// NewHTML builds a text message with an org.matrix.custom.html formatted
// body alongside the plain fallback.
func NewHTML(body, formatted string) *TextMessage {
	return &TextMessage{BaseMessage{
		MsgTypeField:  MsgText,
		Body:          body,
		Format:        "org.matrix.custom.html",
		FormattedBody: formatted,
	}}
}

// parseMessageContent re-dispatches an m.room.message content payload on
// its nested msgtype.
func parseMessageContent(raw []byte) (Content, error) {
	msgtype := peekString(raw, "msgtype")
	if msgtype == "" {
		return nil, &DecodeError{Field: "msgtype", Value: "", Raw: raw}
	}

	factory, ok := defaultRegistry.messageContent(msgtype)
	if !ok {
		var m RawMessageContent
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, &DecodeError{Field: "msgtype", Value: msgtype, Raw: raw}
		}
		return m, nil
	}

	content := factory()
	if err := json.Unmarshal(raw, content); err != nil {
		return nil, &DecodeError{Field: "msgtype", Value: msgtype, Raw: raw}
	}
	return content, nil
}
