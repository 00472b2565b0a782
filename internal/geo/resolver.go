// Package geo resolves client IPs to approximate locations.
package geo

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// Unknown is returned when an IP cannot be resolved to a location.
const Unknown = "unknown"

// Resolver turns a client IP into a coarse "City, CC" label. Implementations
// must return Unknown rather than an error when resolution is not possible;
// location is advisory data, never a hard dependency of the request path.
type Resolver interface {
	Resolve(ip string) string
}

// MaxMindResolver resolves IPs against a local MaxMind GeoLite2-City database.
type MaxMindResolver struct {
	reader *geoip2.Reader
}

// OpenMaxMind opens the database at path. Caller must Close when done.
func OpenMaxMind(path string) (*MaxMindResolver, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database: %w", err)
	}
	return &MaxMindResolver{reader: reader}, nil
}

// Resolve returns "City, CC" for the IP, or Unknown for private, malformed,
// or unmapped addresses.
func (r *MaxMindResolver) Resolve(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return Unknown
	}
	city, err := r.reader.City(parsed)
	if err != nil {
		return Unknown
	}
	name := city.City.Names["en"]
	if name == "" || city.Country.IsoCode == "" {
		return Unknown
	}
	return fmt.Sprintf("%s, %s", name, city.Country.IsoCode)
}

// Close releases the underlying database reader.
func (r *MaxMindResolver) Close() error {
	return r.reader.Close()
}

// NoopResolver resolves everything to Unknown. Used when no GeoIP database is
// configured; matches the lookup-miss behaviour of the real resolver.
type NoopResolver struct{}

func (NoopResolver) Resolve(string) string { return Unknown }
