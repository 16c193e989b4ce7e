package edit

// Always accepts every rune.
func Always(rune) bool { return true }

// Never rejects every rune.
func Never(rune) bool { return false }

// OneOf accepts the runes in chars.
func OneOf(chars ...rune) Guard {
	set := runeSet(chars)
	return func(c rune) bool {
		_, ok := set[c]
		return ok
	}
}

// NoneOf accepts every rune not in chars.
func NoneOf(chars ...rune) Guard {
	set := runeSet(chars)
	return func(c rune) bool {
		_, ok := set[c]
		return !ok
	}
}

// Set always generates chars, whatever is under the cursor.
func Set(chars ...rune) Generator {
	fixed := append([]rune(nil), chars...)
	return func(rune) []rune { return fixed }
}

// Except generates every rune of all that is not listed in excluded.
func Except(all []rune, excluded ...rune) Generator {
	skip := runeSet(excluded)
	kept := make([]rune, 0, len(all))
	for _, c := range all {
		if _, ok := skip[c]; !ok {
			kept = append(kept, c)
		}
	}
	return Set(kept...)
}

func runeSet(chars []rune) map[rune]struct{} {
	set := make(map[rune]struct{}, len(chars))
	for _, c := range chars {
		set[c] = struct{}{}
	}
	return set
}
