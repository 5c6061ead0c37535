package analyzer

import (
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

const (
	EncodingUTF8        = "utf-8"
	EncodingUTF16       = "utf-16"
	EncodingWindows1252 = "windows-1252"
	EncodingLatin1      = "iso-8859-1"
)

// windows1252Undefined holds the byte values left unassigned by windows-1252.
var windows1252Undefined = [256]bool{0x81: true, 0x8D: true, 0x8F: true, 0x90: true, 0x9D: true}

type textDecoder struct {
	name   string
	decode func(data []byte) (string, bool)
}

// decoderCascade is tried in order; the first decoder that accepts the data
// wins. ISO-8859-1 assigns every byte, so the cascade always ends in text.
var decoderCascade = []textDecoder{
	{name: EncodingUTF8, decode: decodeUTF8},
	{name: EncodingUTF16, decode: decodeUTF16},
	{name: EncodingWindows1252, decode: decodeWindows1252},
	{name: EncodingLatin1, decode: decodeLatin1},
}

// DecodeText returns data as text together with the name of the encoding
// that accepted it. NUL bytes are ordinary characters here; only known binary
// extensions skip line counting.
func DecodeText(data []byte) (text string, encodingName string) {
	for _, decoder := range decoderCascade {
		if decodedText, accepted := decoder.decode(data); accepted {
			return decodedText, decoder.name
		}
	}
	latin1Text, _ := decodeLatin1(data)
	return latin1Text, EncodingLatin1
}

func decodeUTF8(data []byte) (string, bool) {
	if !utf8.Valid(data) {
		return "", false
	}
	return string(data), true
}

func decodeUTF16(data []byte) (string, bool) {
	if len(data) < 2 || len(data)%2 != 0 {
		return "", false
	}
	decoder := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
	decoded, decodeError := decoder.Bytes(data)
	if decodeError != nil {
		return "", false
	}
	return string(decoded), true
}

func decodeWindows1252(data []byte) (string, bool) {
	for _, byteValue := range data {
		if windows1252Undefined[byteValue] {
			return "", false
		}
	}
	return decodeSingleByte(charmap.Windows1252, data)
}

func decodeLatin1(data []byte) (string, bool) {
	return decodeSingleByte(charmap.ISO8859_1, data)
}

func decodeSingleByte(characterMap encoding.Encoding, data []byte) (string, bool) {
	decoded, decodeError := characterMap.NewDecoder().Bytes(data)
	if decodeError != nil {
		return "", false
	}
	return string(decoded), true
}

// CountLines counts lines with universal-newline semantics: "\n", "\r\n" and
// a lone "\r" each terminate a line, and a trailing unterminated line counts.
func CountLines(text string) int {
	lineCount := 0
	lastIndex := len(text) - 1
	for index := 0; index < len(text); index++ {
		switch text[index] {
		case '\n':
			lineCount++
		case '\r':
			lineCount++
			if index < lastIndex && text[index+1] == '\n' {
				index++
			}
		}
	}
	if len(text) > 0 && text[lastIndex] != '\n' && text[lastIndex] != '\r' {
		lineCount++
	}
	return lineCount
}

// firstLine returns text up to the first line terminator.
func firstLine(text string) string {
	if terminatorIndex := indexLineTerminator(text); terminatorIndex >= 0 {
		return text[:terminatorIndex]
	}
	return text
}

func indexLineTerminator(text string) int {
	for index := 0; index < len(text); index++ {
		if text[index] == '\n' || text[index] == '\r' {
			return index
		}
	}
	return -1
}
