package submission

import (
	"regexp"
	"strconv"

	"formloc/models"
)

// mergeTagPattern matches the location merge tags a form author can place
// in a hidden field's default value or in notification text.
var mergeTagPattern = regexp.MustCompile(`\{user:(country|city|region|continent|latitude|longitude)\}`)

// HasMergeTags reports whether text contains any location merge tag.
func HasMergeTags(text string) bool {
	return mergeTagPattern.MatchString(text)
}

// FirstTagType returns the first merge tag type in text, or "".
func FirstTagType(text string) string {
	match := mergeTagPattern.FindStringSubmatch(text)
	if match == nil {
		return ""
	}
	return match[1]
}

// ReplaceMergeTags substitutes every location merge tag in text with the
// corresponding value from loc. Error records substitute empty strings so
// no placeholder leaks into stored data.
func ReplaceMergeTags(text string, loc models.Location) string {
	return mergeTagPattern.ReplaceAllStringFunc(text, func(tag string) string {
		if loc.IsError {
			return ""
		}
		return tagValue(loc, mergeTagPattern.FindStringSubmatch(tag)[1])
	})
}

func tagValue(loc models.Location, tagType string) string {
	switch tagType {
	case "country":
		return loc.CountryName
	case "city":
		return loc.City
	case "region":
		return loc.RegionName
	case "continent":
		return loc.ContinentName
	case "latitude":
		return formatCoordinate(loc.Latitude)
	case "longitude":
		return formatCoordinate(loc.Longitude)
	}
	return ""
}

func formatCoordinate(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
