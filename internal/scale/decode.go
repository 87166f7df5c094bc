package scale

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
)

// Padded frame layout: a quote, '0', a space, then 12 digits of which the
// first six are the integer weight. The trailing six are tare/status
// fields on the source hardware and are not decoded.
const (
	paddedDigits       = 12
	paddedWeightDigits = 6
)

// Frame delimiters per encoding.
const (
	standardDelimiter byte = '\n'
	paddedDelimiter   byte = '\r'
)

// paddedPrefix is what a scale sends before the marker. Only EncodePadded
// uses it; the decoder does not require it.
var paddedPrefix = []byte{0x80, 0x02}

var (
	standardToken = regexp.MustCompile(`[-+]?\d*\.?\d+`)
	paddedFrame   = regexp.MustCompile(`"0 (\d{12})`)
)

// DecodeFunc turns one captured read into a weight.
type DecodeFunc func(raw []byte) (float64, error)

// DecodeStandard extracts the first number from a text line such as
// "45.3 kg" or "Weight: -2.5".
func DecodeStandard(raw []byte) (float64, error) {
	line := bytes.TrimSpace(bytes.ToValidUTF8(raw, nil))

	token := standardToken.Find(line)
	if token == nil {
		return 0, &DecodeError{Kind: ErrNoNumericToken, Raw: line}
	}

	weight, err := strconv.ParseFloat(string(token), 64)
	if err != nil {
		return 0, &DecodeError{Kind: ErrNoNumericToken, Raw: line}
	}
	return weight, nil
}

// DecodePadded finds every marker+12-digit frame in raw and decodes the
// last one. A buffer can hold an older unread frame ahead of the current
// one, so the last frame is the most recent reading.
func DecodePadded(raw []byte) (float64, error) {
	matches := paddedFrame.FindAllSubmatch(raw, -1)
	if len(matches) == 0 {
		return 0, &DecodeError{Kind: ErrNoFrameMarker, Raw: raw}
	}

	digits := matches[len(matches)-1][1]
	weight, err := strconv.Atoi(string(digits[:paddedWeightDigits]))
	if err != nil {
		return 0, &DecodeError{Kind: ErrNoFrameMarker, Raw: raw}
	}
	return float64(weight), nil
}

// Decoder returns the decode function for an encoding.
func Decoder(enc Encoding) DecodeFunc {
	if enc == EncodingPadded {
		return DecodePadded
	}
	return DecodeStandard
}

// EncodeStandard renders a weight the way a standard scale prints it.
func EncodeStandard(weight float64) []byte {
	return fmt.Appendf(nil, "%.1f kg\n", weight)
}

// EncodePadded renders a weight as a padded frame. The weight is truncated
// to an integer and clamped to the six digits the frame can carry.
func EncodePadded(weight float64) []byte {
	w := int(weight)
	if w < 0 {
		w = 0
	}
	if w > 999999 {
		w = 999999
	}

	frame := make([]byte, 0, len(paddedPrefix)+3+paddedDigits+1)
	frame = append(frame, paddedPrefix...)
	frame = fmt.Appendf(frame, "\"0 %06d%06d", w, 0)
	return append(frame, paddedDelimiter)
}
