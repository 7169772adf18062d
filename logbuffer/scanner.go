package logbuffer

// ScanOutcome is the result of a scan. Available is the aligned length of the
// whole data frames found; Padding is the aligned length of a trailing padding
// frame the caller must step over after consuming Available.
type ScanOutcome struct {
	Available int
	Padding   int
}

// Pack folds the outcome into one word, padding in the high half, so it can
// be published through a single atomic value.
func (o ScanOutcome) Pack() uint64 {
	return uint64(uint32(o.Padding))<<32 | uint64(uint32(o.Available))
}

func UnpackScanOutcome(v uint64) ScanOutcome {
	return ScanOutcome{
		Available: int(int32(uint32(v))),
		Padding:   int(int32(uint32(v >> 32))),
	}
}

// Consumed is how far a caller advances after handling the outcome.
func (o ScanOutcome) Consumed() int {
	return o.Available + o.Padding
}

// Scan walks the committed frames starting at offset and reports how many
// aligned bytes can be sent as one unit of at most maxLength bytes. It never
// splits a frame: a first frame longer than maxLength yields a zero outcome,
// meaning the caller needs a larger maxLength.
//
// offset must be frame aligned and lower than the capacity.
func Scan(b *Buffer, offset, maxLength int) ScanOutcome {
	var outcome ScanOutcome
	tail := b.Tail()
	position := offset

	for tail-position >= HeaderLength {
		frameLength := b.frameLengthVolatile(position)
		if frameLength <= 0 {
			break
		}
		alignedLength := AlignedLength(frameLength)
		if position+alignedLength > tail {
			break
		}
		if IsPaddingFrame(b.term, position) {
			// A leading padding frame is always reported, otherwise a maxLength
			// smaller than the end-of-term gap would stall the caller forever.
			if outcome.Available == 0 || outcome.Available+alignedLength <= maxLength {
				outcome.Padding = alignedLength
			}
			break
		}
		if outcome.Available+alignedLength > maxLength {
			break
		}
		outcome.Available += alignedLength
		position += alignedLength
	}
	return outcome
}
