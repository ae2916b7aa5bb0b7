package validation

import (
	"context"
	"log"

	"formloc/internal/geolocation"
	"formloc/models"
)

// ConfigErrorMessage is the rejection reason used when the provider access
// key is missing. A missing key is an operator mistake and fails the
// submission instead of failing open.
const ConfigErrorMessage = "Configuration error: Missing API key"

// Result is the outcome of a country check.
type Result struct {
	Pass     bool
	Reason   string
	Location models.Location
	// Resolved reports whether an IP resolution was performed; facts are
	// only registered for annotation when it was.
	Resolved    bool
	APIError    bool
	ConfigError bool
}

// Gate decides whether a submission's originating country is allowed.
// Resolver errors fail open: the submission proceeds and the error is
// surfaced through the annotation note instead.
type Gate struct {
	resolver *geolocation.Resolver
}

// NewGate creates a country gate backed by the given resolver.
func NewGate(resolver *geolocation.Resolver) *Gate {
	return &Gate{resolver: resolver}
}

// Check validates the submitter's country against the form's allow-list.
func (g *Gate) Check(ctx context.Context, ip string, settings *models.FormSettings) Result {
	if !settings.ValidationEnabled {
		return Result{Pass: true}
	}

	// No restriction configured, nothing to resolve.
	if len(settings.AllowedCountries) == 0 {
		return Result{Pass: true}
	}

	if !g.resolver.HasAccessKey() {
		return Result{
			Pass:        false,
			Reason:      ConfigErrorMessage,
			ConfigError: true,
		}
	}

	loc := g.resolver.Resolve(ctx, ip)

	if loc.IsError {
		// Fail open: a provider failure must not block submitters.
		log.Printf("Country check: provider error for %s, allowing submission (fail open): %s", ip, loc.ErrorMessage)
		return Result{
			Pass:     true,
			Location: loc,
			Resolved: true,
			APIError: true,
		}
	}

	for _, country := range settings.AllowedCountries {
		if country == loc.CountryName {
			return Result{Pass: true, Location: loc, Resolved: true}
		}
	}

	return Result{
		Pass:     false,
		Reason:   settings.Message(),
		Location: loc,
		Resolved: true,
	}
}
