package format

// Format describes one selectable delivery option and its yt-dlp selector.
type Format struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Selector string `json:"selector"`
	// AudioOnly marks formats that are transcoded to an audio file and
	// delivered as an audio attachment instead of a document.
	AudioOnly bool `json:"audioOnly"`
	// AudioExt is the container extension produced by the audio
	// post-processing step, empty for plain downloads.
	AudioExt string `json:"audioExt,omitempty"`
}

// Seed provides the default delivery formats offered to every user.
func Seed() []Format {
	return []Format{
		{
			Key:      "best",
			Label:    "🏆 Best (video+audio)",
			Selector: "best",
		},
		{
			Key:       "audio",
			Label:     "🎵 Audio only (m4a)",
			Selector:  "m4a/bestaudio/best",
			AudioOnly: true,
			AudioExt:  "m4a",
		},
		{
			Key:      "mp4",
			Label:    "🎞️ MP4 (compatible)",
			Selector: "bestvideo[ext=mp4]+bestaudio[ext=m4a]/mp4",
		},
	}
}
