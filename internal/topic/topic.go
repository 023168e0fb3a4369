// Package topic builds Tasmota MQTT topics from the user's full topic pattern.
//
// The pattern carries two placeholders, {topic} and {prefix}. Placeholders that are
// missing from the pattern, or unknown ones, are left as literal text; no error is
// reported for a malformed pattern.
package topic

import (
	"strings"

	"tasmota_mqtt/internal/models"
)

// Direction selects the Tasmota prefix segment.
type Direction string

const (
	Command Direction = "cmnd"
	Status  Direction = "stat"
)

const (
	topicPlaceholder  = "{topic}"
	prefixPlaceholder = "{prefix}"
	powerSuffix       = "POWER"
)

// Full returns the command or status topic of a relay, e.g. "plug1/cmnd/POWER2".
func Full(pattern string, r models.Relay, d Direction) string {
	if pattern == "" {
		pattern = models.DefaultTopicPattern
	}
	full := strings.ReplaceAll(pattern, topicPlaceholder, r.Topic)
	full = strings.ReplaceAll(full, prefixPlaceholder, string(d))
	return full + powerSuffix + r.RelayN
}
