package domain

// VideoSource tells where the outbound video track currently comes from.
type VideoSource string

const (
	VideoNone   VideoSource = "none"
	VideoCamera VideoSource = "camera"
	VideoScreen VideoSource = "screen"
)

// MediaState is the single value describing local media as transmitted.
// It is produced by the media session manager from its tracks; UI flags
// such as "screen sharing" are derived from it.
type MediaState struct {
	Mic    bool        `json:"mic"`
	Video  bool        `json:"video"`
	Source VideoSource `json:"source"`
}

func (s MediaState) ScreenSharing() bool { return s.Source == VideoScreen }

// HasVideo reports whether some video track is being sent, enabled or not.
func (s MediaState) HasVideo() bool { return s.Source != VideoNone && s.Source != "" }
