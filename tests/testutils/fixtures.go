package testutils

import (
	"formloc/models"

	"github.com/google/uuid"
)

func CreateTestLocation(ip string) *models.Location {
	return &models.Location{
		IP:            ip,
		CountryName:   "United States",
		CountryCode:   "US",
		City:          "Mountain View",
		RegionName:    "California",
		ContinentName: "North America",
		Zip:           "94043",
		Latitude:      37.386,
		Longitude:     -122.0838,
	}
}

func CreateTestErrorLocation(ip, class, message string) *models.Location {
	return &models.Location{
		IP:           ip,
		CountryName:  class,
		IsError:      true,
		ErrorMessage: message,
	}
}

func CreateTestSubmissionRequest(formID, clientIP string) map[string]interface{} {
	return map[string]interface{}{
		"form_id":   formID,
		"client_ip": clientIP,
		"fields": []map[string]interface{}{
			{"id": "1", "label": "Name", "type": "text", "value": "Jane"},
			{"id": "2", "label": "Country", "type": "hidden", "default_value": "{user:country}"},
		},
	}
}

func CreateTestFormSettings(formID string, countries ...string) *models.FormSettings {
	settings := models.DefaultFormSettings(formID)
	settings.ID = uuid.New().String()
	settings.ValidationEnabled = len(countries) > 0
	settings.AllowedCountries = countries
	return settings
}
