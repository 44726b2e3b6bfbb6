package sandbox

// MaxOutputBytes caps the output returned from one execution. Anything
// beyond it is dropped and the result marked truncated so the model sees
// that the output is partial.
const MaxOutputBytes = 8192

const truncationNotice = "\n...[output truncated]..."

// Truncate limits s to max bytes, appending a truncation notice when
// anything was cut. A max of 0 uses MaxOutputBytes.
func Truncate(s string, max int) (string, bool) {
	if max <= 0 {
		max = MaxOutputBytes
	}
	if len(s) <= max {
		return s, false
	}
	return s[:max] + truncationNotice, true
}
