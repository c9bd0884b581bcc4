package state

// Preferences is the nested UI preferences record.
// It is a plain comparable value; replace it wholesale to update.
type Preferences struct {
	Theme     string `json:"theme"`
	Autoplay  bool   `json:"autoplay"`
	Volume    int    `json:"volume"`
	Quality   string `json:"quality"`
	Subtitles bool   `json:"subtitles"`
}

// DefaultPreferences returns the preferences of a fresh install.
func DefaultPreferences() Preferences {
	return Preferences{
		Theme:    "system",
		Autoplay: true,
		Volume:   100,
		Quality:  "auto",
	}
}
