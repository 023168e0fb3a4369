// Package settings decodes the persisted settings document and migrates older
// schema versions to models.SettingsVersion.
//
// Each step only adds keys that are absent; values the user already has are never
// overwritten or dropped. Documents written by a newer build are refused.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"tasmota_mqtt/internal/models"
)

var (
	ErrSettingsTooNew = errors.New("settings were written by a newer version")
	errNotAnObject    = errors.New("settings document is not a JSON object")
)

type document = map[string]any

// step upgrades a document from version n to n+1.
type step func(doc document)

// steps[n] migrates version n to n+1. Version 0 is an unversioned v1 document.
var steps = map[int]step{
	0: func(document) {},
	1: migrateV1,
	2: migrateV2,
	3: migrateV3,
	4: migrateV4,
}

var relayDefaultsV2 = document{
	"icon":               "icon-bolt",
	"warn":               true,
	"warnPrinting":       true,
	"gcode":              false,
	"gcodeOnDelay":       0,
	"gcodeOffDelay":      0,
	"connect":            false,
	"connectOnDelay":     15,
	"disconnect":         false,
	"disconnectOffDelay": 0,
	"sysCmdOn":           false,
	"sysCmdRunOn":        "",
	"sysCmdOnDelay":      0,
	"sysCmdOff":          false,
	"sysCmdRunOff":       "",
	"sysCmdOffDelay":     0,
}

var relayDefaultsV3 = document{
	"automaticShutdownEnabled": false,
}

var relayDefaultsV5 = document{
	"event_on_error":   false,
	"event_on_startup": false,
	"event_on_upload":  false,
}

// migrateV1 turns the single-device document {topic, currentstate} into a relay list.
func migrateV1(doc document) {
	if _, ok := doc["arrRelays"]; ok {
		return
	}
	relay := document{
		"topic":        "sonoff",
		"relayN":       "",
		"currentstate": string(models.StateUnknown),
	}
	if v, ok := doc["topic"]; ok {
		relay["topic"] = v
	}
	if v, ok := doc["currentstate"]; ok {
		relay["currentstate"] = v
	}
	setDefaults(relay, relayDefaultsV2)
	doc["arrRelays"] = []any{relay}
	delete(doc, "topic")
	delete(doc, "currentstate")
}

// migrateV2 adds idle shutdown. It also backfills v2 relay keys missing from hand-edited files.
func migrateV2(doc document) {
	forEachRelay(doc, func(r document) {
		setDefaults(r, relayDefaultsV2)
		setDefaults(r, relayDefaultsV3)
	})
	setDefaults(doc, document{
		"powerOffWhenIdle":    false,
		"idleTimeout":         models.DefaultIdleTimeout,
		"idleIgnoreCommands":  models.DefaultIdleIgnoreCommands,
		"idleTimeoutWaitTemp": models.DefaultIdleTimeoutWaitTemp,
		"abortTimeout":        models.DefaultAbortTimeout,
	})
}

func migrateV3(doc document) {
	setDefaults(doc, document{"full_topic_pattern": models.DefaultTopicPattern})
}

func migrateV4(doc document) {
	forEachRelay(doc, func(r document) { setDefaults(r, relayDefaultsV5) })
}

// relayDefaults and globalDefaults hold every typed key with the value used when a
// stored value cannot be read.
var (
	relayDefaults  = merged(relayDefaultsV2, relayDefaultsV3, relayDefaultsV5)
	globalDefaults = document{
		"powerOffWhenIdle":    false,
		"idleTimeout":         models.DefaultIdleTimeout,
		"idleTimeoutWaitTemp": models.DefaultIdleTimeoutWaitTemp,
		"abortTimeout":        models.DefaultAbortTimeout,
	}
)

func merged(docs ...document) document {
	out := document{}
	for _, d := range docs {
		for k, v := range d {
			out[k] = v
		}
	}
	return out
}

// Migrate upgrades doc from version from to models.SettingsVersion in place.
func Migrate(doc document, from int) error {
	if from > models.SettingsVersion {
		return fmt.Errorf("%w: stored version %d, supported %d", ErrSettingsTooNew, from, models.SettingsVersion)
	}
	if from < 0 {
		from = 0
	}
	for v := from; v < models.SettingsVersion; v++ {
		steps[v](doc)
	}
	forEachRelay(doc, normalizeRelayN)
	forEachRelay(doc, func(r document) { coerceScalars(r, relayDefaults) })
	coerceScalars(doc, globalDefaults)
	doc["_version"] = models.SettingsVersion
	return nil
}

// Decode parses a stored document written at version and returns current settings.
// An empty document yields the defaults.
func Decode(raw []byte, version int) (models.Settings, error) {
	if len(raw) == 0 {
		return models.DefaultSettings(), nil
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return models.Settings{}, fmt.Errorf("parse settings: %w", err)
	}
	if doc == nil {
		return models.Settings{}, errNotAnObject
	}
	if err := Migrate(doc, version); err != nil {
		return models.Settings{}, err
	}

	migrated, err := json.Marshal(doc)
	if err != nil {
		return models.Settings{}, fmt.Errorf("re-encode migrated settings: %w", err)
	}
	s := models.DefaultSettings()
	s.Relays = nil
	if err := json.Unmarshal(migrated, &s); err != nil {
		return models.Settings{}, fmt.Errorf("decode migrated settings: %w", err)
	}
	if s.Relays == nil {
		s.Relays = []models.Relay{}
	}
	for i := range s.Relays {
		if s.Relays[i].CurrentState == "" {
			s.Relays[i].CurrentState = models.StateUnknown
		}
	}
	s.Version = models.SettingsVersion
	return s, nil
}

// Encode serialises settings at the current version.
func Encode(s models.Settings) ([]byte, error) {
	s.Version = models.SettingsVersion
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}
	return b, nil
}

func setDefaults(dst, defaults document) {
	for k, v := range defaults {
		if _, ok := dst[k]; !ok {
			dst[k] = v
		}
	}
}

func forEachRelay(doc document, fn func(document)) {
	relays, ok := doc["arrRelays"].([]any)
	if !ok {
		return
	}
	for _, r := range relays {
		if m, ok := r.(document); ok {
			fn(m)
		}
	}
}

// normalizeRelayN accepts relay channels stored as numbers; an absent channel is "".
func normalizeRelayN(r document) {
	switch v := r["relayN"].(type) {
	case nil:
		r["relayN"] = ""
	case float64:
		r["relayN"] = strconv.FormatInt(int64(v), 10)
	case string:
	default:
		r["relayN"] = fmt.Sprint(v)
	}
}

// coerceScalars converts numbers and booleans that form fields stored as strings
// ("5", "true") back to JSON numbers and booleans. Fractional numbers are truncated.
// A value that cannot be read falls back to its default.
func coerceScalars(doc, defaults document) {
	for key, def := range defaults {
		v, ok := doc[key]
		if !ok {
			continue
		}
		switch d := def.(type) {
		case int:
			doc[key] = coerceInt(v, d)
		case bool:
			doc[key] = coerceBool(v, d)
		}
	}
}

func coerceInt(v any, def int) any {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return def
		}
		return int64(f)
	default:
		return def
	}
}

func coerceBool(v any, def bool) any {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return def
		}
		return b
	case float64:
		return t != 0
	default:
		return def
	}
}
