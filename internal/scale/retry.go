package scale

// Read attempts per call for each encoding. Padded scales commonly emit
// partial fragments ahead of a valid frame.
const (
	standardAttempts = 1
	paddedAttempts   = 5
)

// ReadFunc performs one raw read and decode.
type ReadFunc func() (float64, error)

// ReadWithRetry calls read up to attempts times, retrying only while the
// result is a decode failure. A transport error stops immediately since
// another read on a broken port cannot succeed.
//
// It returns the weight, the number of attempts made, and the last error.
func ReadWithRetry(attempts int, read ReadFunc) (float64, int, error) {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 1; i <= attempts; i++ {
		var weight float64
		weight, err = read()
		if err == nil {
			return weight, i, nil
		}
		if !IsDecode(err) {
			return 0, i, err
		}
	}
	return 0, attempts, err
}

// attemptsFor returns the per-read attempt budget for an encoding.
func attemptsFor(enc Encoding) int {
	if enc == EncodingPadded {
		return paddedAttempts
	}
	return standardAttempts
}
