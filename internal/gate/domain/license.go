package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LicenseRecord is a single license grant inside the license document.
type LicenseRecord struct {
	Valid    bool       `json:"valid" yaml:"valid"`
	Expires  ExpiryDate `json:"expires" yaml:"expires"`
	Features []string   `json:"features" yaml:"features"`
	MaxUsers *int       `json:"max_users,omitempty" yaml:"max_users,omitempty"`
}

// Usable reports whether the record is marked valid and expires strictly
// after now.
func (r LicenseRecord) Usable(now time.Time) bool {
	return r.Valid && now.Before(r.Expires.Time)
}

// DomainLicense pairs a domain pattern with its license record. Domain
// licenses are scanned in document insertion order, so they are held as a
// slice rather than a map.
type DomainLicense struct {
	Pattern string
	Record  LicenseRecord
}

// LicenseDocument is the entitlement source document. Read-only input: a
// disabled or removed record takes effect only by re-fetching the document,
// never by local mutation.
type LicenseDocument struct {
	Enabled         bool                     `json:"enabled" yaml:"enabled"`
	DomainLicenses  DomainLicenses           `json:"domain_licenses" yaml:"domain_licenses"`
	UserLicenses    map[string]LicenseRecord `json:"user_licenses" yaml:"user_licenses"`
	DefaultFeatures []string                 `json:"default_features" yaml:"default_features"`
}

// DomainLicenses preserves the document's key insertion order across both
// JSON and YAML decoding. encoding/json map decoding would lose it, and
// matching priority depends on it.
type DomainLicenses []DomainLicense

// UnmarshalJSON decodes an object while retaining key order, using the token
// stream instead of a map.
func (d *DomainLicenses) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("domain_licenses: expected object, got %v", tok)
	}

	out := DomainLicenses{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		pattern, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("domain_licenses: non-string key %v", keyTok)
		}

		var record LicenseRecord
		if err := dec.Decode(&record); err != nil {
			return fmt.Errorf("domain_licenses[%s]: %w", pattern, err)
		}

		out = append(out, DomainLicense{Pattern: pattern, Record: record})
	}

	if _, err := dec.Token(); err != nil { // closing brace
		return err
	}

	*d = out
	return nil
}

// MarshalJSON emits the licenses as an object in insertion order.
func (d DomainLicenses) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, lic := range d {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := json.Marshal(lic.Pattern)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(lic.Record)
		if err != nil {
			return nil, err
		}
		buf = append(buf, key...)
		buf = append(buf, ':')
		buf = append(buf, val...)
	}
	return append(buf, '}'), nil
}

// UnmarshalYAML walks the mapping node's content pairs, which yaml.v3 keeps
// in document order.
func (d *DomainLicenses) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("domain_licenses: expected mapping, got %v", node.Kind)
	}

	out := DomainLicenses{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]

		var record LicenseRecord
		if err := valNode.Decode(&record); err != nil {
			return fmt.Errorf("domain_licenses[%s]: %w", keyNode.Value, err)
		}

		out = append(out, DomainLicense{Pattern: keyNode.Value, Record: record})
	}

	*d = out
	return nil
}

// ExpiryDate is a point in time accepted in several wire forms: a bare date
// ("2026-12-31"), RFC 3339, or epoch seconds. License documents in the wild
// use all three.
type ExpiryDate struct {
	time.Time
}

func (e *ExpiryDate) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		return nil
	}

	if unquoted, err := strconv.Unquote(s); err == nil {
		return e.parse(unquoted)
	}

	epoch, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("expiry date: %q", s)
	}
	e.Time = time.Unix(epoch, 0).UTC()
	return nil
}

func (e ExpiryDate) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Format(time.RFC3339))
}

func (e *ExpiryDate) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag == "!!int" {
		epoch, err := strconv.ParseInt(node.Value, 10, 64)
		if err != nil {
			return fmt.Errorf("expiry date: %q", node.Value)
		}
		e.Time = time.Unix(epoch, 0).UTC()
		return nil
	}
	return e.parse(node.Value)
}

func (e *ExpiryDate) parse(s string) error {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			// A bare date means "valid through that day", so push the
			// instant to end of day.
			if layout == "2006-01-02" {
				t = t.Add(24*time.Hour - time.Second)
			}
			e.Time = t
			return nil
		}
	}
	return fmt.Errorf("expiry date: %q", s)
}
