package lightbox

// Key is a navigation input.
type Key int

const (
	KeyUnknown Key = iota
	KeyLeft
	KeyRight
	KeyEscape
)

func (k Key) String() string {
	switch k {
	case KeyLeft:
		return "left"
	case KeyRight:
		return "right"
	case KeyEscape:
		return "escape"
	default:
		return "unknown"
	}
}

// ParseKeyName maps a key name as sent by a web client ("ArrowLeft",
// "left", "Escape", ...) to a Key.
func ParseKeyName(name string) Key {
	switch name {
	case "ArrowLeft", "left", "Left", "h":
		return KeyLeft
	case "ArrowRight", "right", "Right", "l":
		return KeyRight
	case "Escape", "Esc", "escape", "esc", "q":
		return KeyEscape
	default:
		return KeyUnknown
	}
}

// ParseKey decodes one terminal read: ESC [ D and ESC [ C (or the SS3 forms
// ESC O D / ESC O C) for the arrows, a bare ESC, and the h/l/q aliases.
func ParseKey(b []byte) Key {
	switch {
	case len(b) == 1:
		switch b[0] {
		case 0x1b, 'q', 'Q', 0x03:
			return KeyEscape
		case 'h', 'H':
			return KeyLeft
		case 'l', 'L':
			return KeyRight
		}
	case len(b) >= 3 && b[0] == 0x1b && (b[1] == '[' || b[1] == 'O'):
		switch b[2] {
		case 'D':
			return KeyLeft
		case 'C':
			return KeyRight
		}
	}
	return KeyUnknown
}
