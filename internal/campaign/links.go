package campaign

import (
	"regexp"
	"strings"
)

var linkPattern = regexp.MustCompile(`https?://\S+`)

// Links holds submitted proof links split into the two recognized platform
// families, deduplicated within each.
type Links struct {
	VK       []string
	Telegram []string
}

// ParseLinks extracts recognized links from a free-text submission. Links
// from unrecognized domains are dropped.
func ParseLinks(text string) Links {
	var l Links
	seenVK := make(map[string]bool)
	seenTG := make(map[string]bool)

	for _, link := range linkPattern.FindAllString(text, -1) {
		switch {
		case strings.Contains(link, "vk.com"), strings.Contains(link, "vk.ru"):
			if !seenVK[link] {
				seenVK[link] = true
				l.VK = append(l.VK, link)
			}
		case strings.Contains(link, "t.me"):
			if !seenTG[link] {
				seenTG[link] = true
				l.Telegram = append(l.Telegram, link)
			}
		}
	}
	return l
}

// Empty reports whether no recognized links were found.
func (l Links) Empty() bool {
	return len(l.VK) == 0 && len(l.Telegram) == 0
}

// Reward returns the point award for a submission: 1 for links from a single
// platform family, 2 when both families are present.
func (l Links) Reward() int {
	platforms := 0
	if len(l.VK) > 0 {
		platforms++
	}
	if len(l.Telegram) > 0 {
		platforms++
	}
	switch platforms {
	case 0:
		return 0
	case 1:
		return 1
	default:
		return 2
	}
}

// All returns every link, VK family first, for storage and audit.
func (l Links) All() []string {
	return append(append([]string{}, l.VK...), l.Telegram...)
}
