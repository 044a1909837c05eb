package bdrom

import (
	"regexp"
	"strings"
)

var (
	allDigitsPattern  = regexp.MustCompile(`^\d+$`)
	shortCodePattern  = regexp.MustCompile(`^[A-Z0-9_]{1,4}$`)
	leadingNumPattern = regexp.MustCompile(`^\d+_`)
	discSuffixPattern = regexp.MustCompile(`(?i)_(S\d+_)?DIS[CK]_?\d+$`)
	tvSuffixPattern   = regexp.MustCompile(`(?i)_TV$`)
)

// IsUnusableLabel reports whether a volume label is generic authoring noise
// rather than a title.
func IsUnusableLabel(label string) bool {
	label = strings.TrimSpace(label)
	if label == "" {
		return true
	}
	upper := strings.ToUpper(label)
	for _, pattern := range []string{
		"LOGICAL_VOLUME_ID", "VOLUME_ID", "BLURAY", "BD_ROM", "BDROM",
		"UNTITLED", "UNKNOWN DISC", "VOLUME_", "VOLUME ID", "DISK_",
	} {
		if strings.Contains(upper, pattern) {
			return true
		}
	}
	return allDigitsPattern.MatchString(label) || shortCodePattern.MatchString(upper)
}

// TitleFromVolumeLabel turns a label such as "12_THE_MOVIE_DISC_1" into
// "THE MOVIE". Unusable labels yield "".
func TitleFromVolumeLabel(label string) string {
	if IsUnusableLabel(label) {
		return ""
	}
	title := leadingNumPattern.ReplaceAllString(strings.TrimSpace(label), "")
	title = discSuffixPattern.ReplaceAllString(title, "")
	title = tvSuffixPattern.ReplaceAllString(title, "")
	title = strings.TrimSpace(strings.ReplaceAll(title, "_", " "))
	if title == "" || allDigitsPattern.MatchString(title) {
		return ""
	}
	return title
}
