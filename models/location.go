package models

// Location is the normalized result of an IP geolocation lookup.
// A Location is either a geographic result (IsError false, CountryName set)
// or a classified error placeholder (IsError true, ErrorMessage set).
// Cached copies are never mutated; a fresh lookup replaces the entry.
type Location struct {
	IP            string  `db:"ip" json:"ip" bson:"ip"`
	CountryName   string  `db:"country_name" json:"country_name" bson:"country_name"`
	CountryCode   string  `db:"country_code" json:"country_code" bson:"country_code"`
	City          string  `db:"city" json:"city" bson:"city"`
	RegionName    string  `db:"region_name" json:"region_name" bson:"region_name"`
	ContinentName string  `db:"continent_name" json:"continent_name" bson:"continent_name"`
	Zip           string  `db:"zip" json:"zip" bson:"zip"`
	Latitude      float64 `db:"latitude" json:"latitude" bson:"latitude"`
	Longitude     float64 `db:"longitude" json:"longitude" bson:"longitude"`
	IsError       bool    `db:"is_error" json:"is_error" bson:"is_error"`
	ErrorMessage  string  `db:"error_message" json:"error_message,omitempty" bson:"error_message,omitempty"`
}

// Text formats the location for display as "city, country (region)".
// The region segment is dropped when empty or equal to the city, the city
// segment when empty. Returns "" for records without a country.
func (l Location) Text() string {
	if l.CountryName == "" {
		return ""
	}

	text := l.CountryName
	if l.City != "" {
		text = l.City + ", " + text
	}
	if l.RegionName != "" && l.RegionName != l.City {
		text = text + " (" + l.RegionName + ")"
	}
	return text
}
