package keys

import "strings"

// Linux input-event key codes for the keys a layout file can name.
const (
	CodeEscape     Code = 1
	Code1          Code = 2
	Code2          Code = 3
	Code3          Code = 4
	Code4          Code = 5
	Code5          Code = 6
	Code6          Code = 7
	Code7          Code = 8
	Code8          Code = 9
	Code9          Code = 10
	Code0          Code = 11
	CodeMinus      Code = 12
	CodeEqual      Code = 13
	CodeBackspace  Code = 14
	CodeTab        Code = 15
	CodeQ          Code = 16
	CodeW          Code = 17
	CodeE          Code = 18
	CodeR          Code = 19
	CodeT          Code = 20
	CodeY          Code = 21
	CodeU          Code = 22
	CodeI          Code = 23
	CodeO          Code = 24
	CodeP          Code = 25
	CodeLeftBrace  Code = 26
	CodeRightBrace Code = 27
	CodeEnter      Code = 28
	CodeLeftCtrl   Code = 29
	CodeA          Code = 30
	CodeS          Code = 31
	CodeD          Code = 32
	CodeF          Code = 33
	CodeG          Code = 34
	CodeH          Code = 35
	CodeJ          Code = 36
	CodeK          Code = 37
	CodeL          Code = 38
	CodeSemicolon  Code = 39
	CodeApostrophe Code = 40
	CodeGrave      Code = 41
	CodeLeftShift  Code = 42
	CodeBackslash  Code = 43
	CodeZ          Code = 44
	CodeX          Code = 45
	CodeC          Code = 46
	CodeV          Code = 47
	CodeB          Code = 48
	CodeN          Code = 49
	CodeM          Code = 50
	CodeComma      Code = 51
	CodeDot        Code = 52
	CodeSlash      Code = 53
	CodeRightShift Code = 54
	CodeLeftAlt    Code = 56
	CodeSpace      Code = 57
	CodeCapsLock   Code = 58
	CodeF1         Code = 59
	CodeF2         Code = 60
	CodeF3         Code = 61
	CodeF4         Code = 62
	CodeF5         Code = 63
	CodeF6         Code = 64
	CodeF7         Code = 65
	CodeF8         Code = 66
	CodeF9         Code = 67
	CodeF10        Code = 68
	CodeNumLock    Code = 69
	CodeScrollLock Code = 70
	CodeF11        Code = 87
	CodeF12        Code = 88
	CodeKPEnter    Code = 96
	CodeRightCtrl  Code = 97
	CodeRightAlt   Code = 100
	CodeHome       Code = 102
	CodeUp         Code = 103
	CodePageUp     Code = 104
	CodeLeft       Code = 105
	CodeRight      Code = 106
	CodeEnd        Code = 107
	CodeDown       Code = 108
	CodePageDown   Code = 109
	CodeInsert     Code = 110
	CodeDelete     Code = 111
	CodeLeftMeta   Code = 125
	CodeRightMeta  Code = 126
	CodeCompose    Code = 127
)

// nameCodes maps layout key names (lowercase) to codes.
var nameCodes = map[string]Code{
	"esc":        CodeEscape,
	"escape":     CodeEscape,
	"1":          Code1,
	"2":          Code2,
	"3":          Code3,
	"4":          Code4,
	"5":          Code5,
	"6":          Code6,
	"7":          Code7,
	"8":          Code8,
	"9":          Code9,
	"0":          Code0,
	"minus":      CodeMinus,
	"equal":      CodeEqual,
	"backspace":  CodeBackspace,
	"bspc":       CodeBackspace,
	"tab":        CodeTab,
	"q":          CodeQ,
	"w":          CodeW,
	"e":          CodeE,
	"r":          CodeR,
	"t":          CodeT,
	"y":          CodeY,
	"u":          CodeU,
	"i":          CodeI,
	"o":          CodeO,
	"p":          CodeP,
	"leftbrace":  CodeLeftBrace,
	"rightbrace": CodeRightBrace,
	"enter":      CodeEnter,
	"return":     CodeEnter,
	"lctl":       CodeLeftCtrl,
	"leftctrl":   CodeLeftCtrl,
	"a":          CodeA,
	"s":          CodeS,
	"d":          CodeD,
	"f":          CodeF,
	"g":          CodeG,
	"h":          CodeH,
	"j":          CodeJ,
	"k":          CodeK,
	"l":          CodeL,
	"semicolon":  CodeSemicolon,
	"apostrophe": CodeApostrophe,
	"grave":      CodeGrave,
	"lsft":       CodeLeftShift,
	"leftshift":  CodeLeftShift,
	"backslash":  CodeBackslash,
	"z":          CodeZ,
	"x":          CodeX,
	"c":          CodeC,
	"v":          CodeV,
	"b":          CodeB,
	"n":          CodeN,
	"m":          CodeM,
	"comma":      CodeComma,
	"dot":        CodeDot,
	"slash":      CodeSlash,
	"rsft":       CodeRightShift,
	"rightshift": CodeRightShift,
	"lalt":       CodeLeftAlt,
	"leftalt":    CodeLeftAlt,
	"space":      CodeSpace,
	"spc":        CodeSpace,
	"caps":       CodeCapsLock,
	"capslock":   CodeCapsLock,
	"f1":         CodeF1,
	"f2":         CodeF2,
	"f3":         CodeF3,
	"f4":         CodeF4,
	"f5":         CodeF5,
	"f6":         CodeF6,
	"f7":         CodeF7,
	"f8":         CodeF8,
	"f9":         CodeF9,
	"f10":        CodeF10,
	"f11":        CodeF11,
	"f12":        CodeF12,
	"numlock":    CodeNumLock,
	"scrolllock": CodeScrollLock,
	"kpenter":    CodeKPEnter,
	"rctl":       CodeRightCtrl,
	"rightctrl":  CodeRightCtrl,
	"ralt":       CodeRightAlt,
	"rightalt":   CodeRightAlt,
	"home":       CodeHome,
	"up":         CodeUp,
	"pageup":     CodePageUp,
	"pgup":       CodePageUp,
	"left":       CodeLeft,
	"right":      CodeRight,
	"end":        CodeEnd,
	"down":       CodeDown,
	"pagedown":   CodePageDown,
	"pgdn":       CodePageDown,
	"insert":     CodeInsert,
	"ins":        CodeInsert,
	"delete":     CodeDelete,
	"del":        CodeDelete,
	"lmet":       CodeLeftMeta,
	"leftmeta":   CodeLeftMeta,
	"rmet":       CodeRightMeta,
	"rightmeta":  CodeRightMeta,
	"compose":    CodeCompose,
	"cmp":        CodeCompose,
}

// codeNames is the reverse of nameCodes, built once at init.
// Where a code has several names, the longest one is kept.
var codeNames = func() map[Code]string {
	m := make(map[Code]string, len(nameCodes))
	for name, code := range nameCodes {
		if existing, ok := m[code]; !ok || len(name) > len(existing) {
			m[code] = name
		}
	}
	return m
}()

// CodeFromName returns the code for a key name (case-insensitive).
// The second result is false if the name is not recognized.
func CodeFromName(name string) (Code, bool) {
	c, ok := nameCodes[strings.ToLower(strings.TrimSpace(name))]
	return c, ok
}
