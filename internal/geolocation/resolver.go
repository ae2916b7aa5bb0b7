package geolocation

import (
	"context"
	"log"
	"net"
	"strings"
	"time"
	"unicode"

	"formloc/internal/cache"
	"formloc/models"
)

// Classification placeholders stored in CountryName on failed lookups.
const (
	ClassInvalidIP  = "Invalid IP"
	ClassKeyMissing = "API Key Missing"
	ClassAPIError   = "API Error"
	ClassDataError  = "Data Error"
)

// Resolver produces a classified location record for an IP address: cache
// first, provider second, write-through always. Resolve never returns an
// error; every failure path yields an error-flagged record so callers never
// re-derive error state from raw provider data. Errors are cached with a
// short TTL, successes with a long one.
type Resolver struct {
	cache      *cache.MultiLayerCache
	client     *Client
	accessKey  string
	successTTL time.Duration
	errorTTL   time.Duration
}

// NewResolver creates a resolver. An empty access key is accepted; lookups
// will classify it as a configuration error.
func NewResolver(c *cache.MultiLayerCache, client *Client, accessKey string, successTTL, errorTTL time.Duration) *Resolver {
	return &Resolver{
		cache:      c,
		client:     client,
		accessKey:  accessKey,
		successTTL: successTTL,
		errorTTL:   errorTTL,
	}
}

// HasAccessKey reports whether a provider access key is configured.
func (r *Resolver) HasAccessKey() bool {
	return r.accessKey != ""
}

// Cache exposes the underlying cache for the admin clear/stats operations.
func (r *Resolver) Cache() *cache.MultiLayerCache {
	return r.cache
}

// SuccessTTL returns the TTL applied to successful lookups.
func (r *Resolver) SuccessTTL() time.Duration { return r.successTTL }

// ErrorTTL returns the TTL applied to failed lookups.
func (r *Resolver) ErrorTTL() time.Duration { return r.errorTTL }

// Resolve returns the location record for an IP address.
func (r *Resolver) Resolve(ctx context.Context, ip string) models.Location {
	if strings.TrimSpace(ip) == "" {
		log.Printf("Resolve: empty IP address provided")
		// Not cached: there is no usable cache key for an empty input.
		return models.Location{
			CountryName:  ClassInvalidIP,
			IsError:      true,
			ErrorMessage: "Empty IP address provided",
		}
	}

	ip = sanitizeText(ip)

	if loc, ok := r.cache.Get(ctx, ip); ok {
		return loc
	}

	if net.ParseIP(ip) == nil {
		log.Printf("Resolve: invalid IP format: %s", ip)
		return r.storeError(ctx, ip, ClassInvalidIP, "Invalid IP format: "+ip)
	}

	if r.accessKey == "" {
		log.Printf("Resolve: missing ipstack access key")
		return r.storeError(ctx, ip, ClassKeyMissing, "IPStack API key is missing")
	}

	log.Printf("Resolve: fetching location for %s (key %s)", ip, MaskKey(r.accessKey))

	resp, err := r.client.Lookup(ctx, ip, r.accessKey)
	if err != nil {
		log.Printf("Resolve: provider request failed for %s: %v", ip, err)
		return r.storeError(ctx, ip, ClassAPIError, err.Error())
	}

	if resp.Error != nil {
		info := resp.Error.Info
		if info == "" {
			info = "Unknown API Error"
		}
		log.Printf("Resolve: provider error for %s: %s", ip, info)
		return r.storeError(ctx, ip, ClassAPIError, info)
	}

	if resp.CountryName == "" {
		log.Printf("Resolve: invalid or empty provider response for %s", ip)
		return r.storeError(ctx, ip, ClassDataError, "Invalid or empty API response")
	}

	loc := models.Location{
		IP:            ip,
		CountryName:   sanitizeText(resp.CountryName),
		CountryCode:   sanitizeText(resp.CountryCode),
		City:          sanitizeText(resp.City),
		RegionName:    sanitizeText(resp.RegionName),
		ContinentName: sanitizeText(resp.ContinentName),
		Zip:           sanitizeText(resp.Zip),
		Latitude:      resp.Latitude,
		Longitude:     resp.Longitude,
		IsError:       false,
	}

	r.cache.Put(ctx, ip, loc, r.successTTL)
	return loc
}

// storeError caches a classified error record with the error TTL and
// returns it.
func (r *Resolver) storeError(ctx context.Context, ip, class, message string) models.Location {
	loc := models.Location{
		IP:           ip,
		CountryName:  class,
		IsError:      true,
		ErrorMessage: sanitizeText(message),
	}
	r.cache.Put(ctx, ip, loc, r.errorTTL)
	return loc
}

// sanitizeText trims whitespace and strips control characters and angle
// brackets from provider-supplied text before it is cached or displayed.
func sanitizeText(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(c rune) rune {
		if unicode.IsControl(c) || c == '<' || c == '>' {
			return -1
		}
		return c
	}, s)
}
