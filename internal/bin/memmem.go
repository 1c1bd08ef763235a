package bin

// MemMem returns the offset of the first occurrence of needle in hay, or -1
// if absent. Naive O(n*m) scan — n is at most ~128 MiB in practice and m
// is tiny (32 bytes for the PLT pattern, a handful of
// bytes for build-id needles), so no Boyer-Moore is warranted.
func MemMem(hay, needle []byte) int {
	if len(needle) == 0 || len(needle) > len(hay) {
		return -1
	}
	for i := 0; i+len(needle) <= len(hay); i++ {
		if matches(hay[i:i+len(needle)], needle) {
			return i
		}
	}
	return -1
}

// MemMemMasked scans for needle in hay, but only compares bytes where the
// corresponding mask byte is nonzero. Used for the AArch64 PLT resolver
// pattern, where one instruction word (the PC-relative ADRP) is fully
// wildcarded and the next three are matched on their top byte only.
func MemMemMasked(hay, needle, mask []byte) int {
	if len(needle) != len(mask) || len(needle) == 0 || len(needle) > len(hay) {
		return -1
	}
	for i := 0; i+len(needle) <= len(hay); i++ {
		if matchesMasked(hay[i:i+len(needle)], needle, mask) {
			return i
		}
	}
	return -1
}

// MemMemReverse scans for needle in hay starting from the end, returning the
// offset of the last occurrence (or -1). Used for GNU build-id note
// discovery, which biases toward the latest note in a segment.
func MemMemReverse(hay, needle []byte) int {
	if len(needle) == 0 || len(needle) > len(hay) {
		return -1
	}
	for i := len(hay) - len(needle); i >= 0; i-- {
		if matches(hay[i:i+len(needle)], needle) {
			return i
		}
	}
	return -1
}

func matches(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func matchesMasked(a, needle, mask []byte) bool {
	for i := range a {
		if a[i]&mask[i] != needle[i]&mask[i] {
			return false
		}
	}
	return true
}
