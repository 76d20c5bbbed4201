package liveauth

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"acctswap/internal/model"
	"acctswap/internal/store"
)

// IdentityKey is the profile field holding the signed-in identity.
const IdentityKey = "oauthAccount"

var (
	ErrProfileNotFound = errors.New("live profile not found")
	ErrNoIdentity      = errors.New("profile has no identity section")
)

// Profile is the external tool's profile document. Fields other than the
// identity section are kept as raw JSON so they survive a rewrite untouched.
type Profile map[string]json.RawMessage

func ParseProfile(data []byte) (Profile, error) {
	doc := Profile{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	if doc == nil {
		doc = Profile{}
	}
	return doc, nil
}

// IdentitySection returns the raw identity section.
func (p Profile) IdentitySection() (json.RawMessage, error) {
	raw, ok := p[IdentityKey]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return nil, ErrNoIdentity
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoIdentity, err)
	}
	return raw, nil
}

func (p Profile) Identity() (model.Identity, error) {
	raw, err := p.IdentitySection()
	if err != nil {
		return model.Identity{}, err
	}
	var id model.Identity
	if err := json.Unmarshal(raw, &id); err != nil {
		return model.Identity{}, fmt.Errorf("%w: %v", ErrNoIdentity, err)
	}
	if id.IsZero() {
		return model.Identity{}, ErrNoIdentity
	}
	return id, nil
}

// SpliceIdentity returns doc with the top-level identity section replaced by
// section. Every other byte of doc is kept as it was.
func SpliceIdentity(doc []byte, section json.RawMessage) ([]byte, error) {
	if !json.Valid(section) {
		return nil, fmt.Errorf("%w: section is not valid JSON", ErrNoIdentity)
	}
	if len(bytes.TrimSpace(doc)) == 0 {
		return json.MarshalIndent(map[string]json.RawMessage{IdentityKey: section}, "", "  ")
	}

	start, end, found, empty, err := fieldSpan(doc, IdentityKey)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(doc)+len(section))
	if found {
		out = append(out, doc[:start]...)
		out = append(out, section...)
		return append(out, doc[end:]...), nil
	}

	closing := bytes.LastIndexByte(doc, '}')
	key, _ := json.Marshal(IdentityKey)
	out = append(out, doc[:closing]...)
	if !empty {
		out = append(out, ',')
	}
	out = append(out, key...)
	out = append(out, ':')
	out = append(out, section...)
	return append(out, doc[closing:]...), nil
}

// fieldSpan locates the value of a top-level object field as a byte range.
func fieldSpan(doc []byte, key string) (start, end int, found, empty bool, err error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	tok, err := dec.Token()
	if err != nil {
		return 0, 0, false, false, fmt.Errorf("decode profile: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return 0, 0, false, false, errors.New("decode profile: not a JSON object")
	}
	empty = true
	for dec.More() {
		empty = false
		tok, err := dec.Token()
		if err != nil {
			return 0, 0, false, false, fmt.Errorf("decode profile: %w", err)
		}
		name, _ := tok.(string)
		afterKey := int(dec.InputOffset())
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return 0, 0, false, false, fmt.Errorf("decode profile: %w", err)
		}
		if name != key {
			continue
		}
		end = int(dec.InputOffset())
		start = afterKey
		for start < end && (doc[start] == ':' || isJSONSpace(doc[start])) {
			start++
		}
		return start, end, true, false, nil
	}
	if _, err := dec.Token(); err != nil {
		return 0, 0, false, false, fmt.Errorf("decode profile: %w", err)
	}
	return 0, 0, false, empty, nil
}

func isJSONSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// ProfileFile is the live profile on disk.
type ProfileFile struct {
	path string
}

func NewProfileFile(path string) *ProfileFile {
	return &ProfileFile{path: strings.TrimSpace(path)}
}

func (f *ProfileFile) Path() string {
	return f.path
}

func (f *ProfileFile) ReadRaw() ([]byte, error) {
	if f.path == "" {
		return nil, errors.New("profile path is empty")
	}
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrProfileNotFound
	}
	return data, err
}

func (f *ProfileFile) Read() (Profile, error) {
	data, err := f.ReadRaw()
	if err != nil {
		return nil, err
	}
	return ParseProfile(data)
}

// ApplyIdentity replaces only the identity section of the live profile.
func (f *ProfileFile) ApplyIdentity(section json.RawMessage) error {
	if len(section) == 0 {
		return ErrNoIdentity
	}
	doc, err := f.ReadRaw()
	if errors.Is(err, ErrProfileNotFound) {
		doc = nil
	} else if err != nil {
		return err
	}
	payload, err := SpliceIdentity(doc, section)
	if err != nil {
		return err
	}
	if err := store.WriteFileAtomic(f.path, payload, 0o600, func(written []byte) error {
		_, err := ParseProfile(written)
		return err
	}); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return nil
}
