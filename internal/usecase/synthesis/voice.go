package synthesis

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultVoice is substituted for unknown voices and used for the fallback attempt.
const DefaultVoice = "zh-CN-XiaoxiaoNeural"

// DefaultVoices is the built-in set of supported voices.
var DefaultVoices = []string{
	"zh-CN-XiaoxiaoNeural",
	"zh-CN-YunxiNeural",
	"zh-CN-YunyangNeural",
	"zh-CN-XiaoyiNeural",
	"zh-CN-YunjianNeural",
}

// Catalog is the immutable set of known voices.
type Catalog struct {
	voices       map[string]struct{}
	defaultVoice string
}

// NewCatalog builds a catalog. The default voice must be one of voices.
func NewCatalog(voices []string, defaultVoice string) (*Catalog, error) {
	if len(voices) == 0 {
		return nil, fmt.Errorf("voice catalog is empty")
	}
	c := &Catalog{voices: make(map[string]struct{}, len(voices)), defaultVoice: defaultVoice}
	for _, v := range voices {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		c.voices[v] = struct{}{}
	}
	if _, ok := c.voices[defaultVoice]; !ok {
		return nil, fmt.Errorf("default voice %q is not in the catalog", defaultVoice)
	}
	return c, nil
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	c, _ := NewCatalog(DefaultVoices, DefaultVoice)
	return c
}

// Canonical returns voice if it is known and the default voice otherwise.
func (c *Catalog) Canonical(voice string) string {
	if _, ok := c.voices[strings.TrimSpace(voice)]; ok {
		return strings.TrimSpace(voice)
	}
	return c.defaultVoice
}

// Known reports whether voice is in the catalog.
func (c *Catalog) Known(voice string) bool {
	_, ok := c.voices[voice]
	return ok
}

// Default returns the default voice.
func (c *Catalog) Default() string {
	return c.defaultVoice
}

// Voices returns the known voices sorted by name.
func (c *Catalog) Voices() []string {
	out := make([]string, 0, len(c.voices))
	for v := range c.voices {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
