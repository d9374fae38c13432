package protocol

import (
	"strconv"
)

// Properties is a property object split at the decode boundary into the
// well-known numeric keys and the application's custom string keys.
type Properties struct {
	Standard map[byte]any
	Custom   map[string]any
}

// NewProperties returns an empty, non-nil Properties.
func NewProperties() Properties {
	return Properties{
		Standard: make(map[byte]any),
		Custom:   make(map[string]any),
	}
}

// SplitProperties separates a raw property object. Keys that parse as an
// integer in [0, 255] are standard. Other integer keys name no property
// and are dropped. Every remaining key is custom.
//
// Postcondition: Returns two disjoint maps; Custom holds no integer key.
func SplitProperties(raw map[string]any) Properties {
	props := NewProperties()
	for k, v := range raw {
		if n, ok := IntegerKey(k); ok {
			if n >= 0 && n <= 255 {
				props.Standard[byte(n)] = v
			}
			continue
		}
		props.Custom[k] = v
	}
	return props
}

// IntegerKey reports whether a property key parses as an integer.
func IntegerKey(k string) (int, bool) {
	n, err := strconv.Atoi(k)
	return n, err == nil
}

// Encode joins the two maps back into one wire object; standard keys are
// written as decimal strings.
func (p Properties) Encode() map[string]any {
	out := make(map[string]any, len(p.Standard)+len(p.Custom))
	for k, v := range p.Custom {
		out[k] = v
	}
	for k, v := range p.Standard {
		out[strconv.Itoa(int(k))] = v
	}
	return out
}

// Empty reports whether both maps are empty.
func (p Properties) Empty() bool {
	return len(p.Standard) == 0 && len(p.Custom) == 0
}

// PropertiesAt reads and splits the property object stored under key.
func (p Params) PropertiesAt(key byte) (Properties, bool) {
	raw, ok := p.Map(key)
	if !ok {
		return NewProperties(), false
	}
	return SplitProperties(raw), true
}
