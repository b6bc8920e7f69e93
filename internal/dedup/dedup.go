package dedup

import (
	"strings"
	"unicode"

	"ElectionWatch/internal/domain"
)

// PrefixLength bounds the fingerprint in runes.
const PrefixLength = 160

// Fingerprint builds the best-effort similarity key for an item: lowercase,
// punctuation and symbols removed, whitespace collapsed, title then body,
// truncated to PrefixLength runes.
func Fingerprint(title, body string) string {
	var b strings.Builder
	b.Grow(PrefixLength)

	runes := 0
	space := true
	write := func(s string) bool {
		for _, r := range s {
			switch {
			case unicode.IsLetter(r) || unicode.IsDigit(r):
				b.WriteRune(unicode.ToLower(r))
				space = false
			case unicode.IsSpace(r):
				if space {
					continue
				}
				b.WriteByte(' ')
				space = true
			default:
				continue
			}
			runes++
			if runes >= PrefixLength {
				return false
			}
		}
		return true
	}

	if write(title) && !space {
		b.WriteByte(' ')
		space = true
		runes++
	}
	if runes < PrefixLength {
		write(body)
	}

	return strings.TrimSpace(b.String())
}

// Candidate is a normalised item travelling through dedup.
type Candidate struct {
	Item        domain.RawItem
	Fingerprint string
	Priority    int
	TopicWeight int
	Duplicate   bool
	// Occurrences counts this item plus every duplicate folded into it.
	Occurrences int
}

// Dedupe fingerprints items in scan order and marks later copies as
// duplicates. The first occurrence stays canonical and absorbs the
// duplicates' engagement so volume is not lost.
func Dedupe(items []Candidate) []Candidate {
	out := make([]Candidate, len(items))
	canonical := make(map[string]int, len(items))

	for i, c := range items {
		if c.Fingerprint == "" {
			c.Fingerprint = Fingerprint(c.Item.Title, c.Item.Body)
		}
		c.Occurrences = 1
		c.Duplicate = false

		if idx, ok := canonical[c.Fingerprint]; ok {
			c.Duplicate = true
			first := &out[idx]
			first.Occurrences++
			first.Item.Engagement = mergeEngagement(first.Item.Engagement, c.Item.Engagement)
		} else {
			canonical[c.Fingerprint] = i
		}
		out[i] = c
	}

	return out
}

func mergeEngagement(a, b *domain.Engagement) *domain.Engagement {
	if b == nil {
		return a
	}
	merged := domain.Engagement{}
	if a != nil {
		merged = *a
	}
	merged.Likes += b.Likes
	merged.Shares += b.Shares
	merged.Replies += b.Replies
	return &merged
}
