// Package storage holds helpers shared by the record sinks.
// Each sink lives in its own subpackage and implements crawler.RecordSink.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/JakeFAU/wikidot-crawler/internal/crawler"
)

// ContentType is the media type of encoded records.
const ContentType = "application/json"

// ErrMissingKey is returned for records without a link.
var ErrMissingKey = errors.New("record key is required")

// ObjectPath returns "<prefix>/<kind>/<escaped link>.json" for a record.
func ObjectPath(prefix string, record crawler.Record) (string, error) {
	key := strings.TrimSpace(record.Key())
	if key == "" {
		return "", ErrMissingKey
	}
	name := url.PathEscape(key) + ".json"
	return path.Join(strings.Trim(prefix, "/"), string(record.RecordKind()), name), nil
}

// Encode renders a record as JSON.
func Encode(record crawler.Record) ([]byte, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encode %s record %q: %w", record.RecordKind(), record.Key(), err)
	}
	return data, nil
}
