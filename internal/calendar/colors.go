package calendar

import "strings"

// Google Calendar exposes a fixed palette of event colors addressed by id.
// Board colors map onto the nearest palette entry; unknown colors get no
// override.
var boardColorIDs = map[string]string{
	"#7986cb": "1",  // lavender
	"#33b679": "2",  // sage
	"#8e24aa": "3",  // grape
	"#e67c73": "4",  // flamingo
	"#f6bf26": "5",  // banana
	"#f4511e": "6",  // tangerine
	"#039be5": "7",  // peacock
	"#616161": "8",  // graphite
	"#3f51b5": "9",  // blueberry
	"#0b8043": "10", // basil
	"#d50000": "11", // tomato
}

// EventColorID resolves a board hex color to a provider color id, or "" when
// the color has no palette match.
func EventColorID(hex string) string {
	return boardColorIDs[strings.ToLower(strings.TrimSpace(hex))]
}
