package model

import (
	"fmt"
	"strings"
)

// PartKind selects one of the generated parts.
type PartKind int

const (
	PartUnknown PartKind = iota
	PartPlatformTop
	PartPlatformTop2D
	PartBearingNorthEast
	PartBearingNorthWest
	PartTemplateBearingSouth
	PartBearingFrontSouth
	PartInformationPlate
)

// BatchParts lists the physical parts emitted by the "all parts" batch, in
// archive order.
var BatchParts = []PartKind{
	PartPlatformTop,
	PartBearingNorthEast,
	PartBearingNorthWest,
	PartTemplateBearingSouth,
	PartBearingFrontSouth,
	PartInformationPlate,
}

var partCodes = map[PartKind]string{
	PartPlatformTop:          "tpt3d",
	PartPlatformTop2D:        "tpt",
	PartBearingNorthEast:     "bne",
	PartBearingNorthWest:     "bnw",
	PartTemplateBearingSouth: "tbs",
	PartBearingFrontSouth:    "bfs",
	PartInformationPlate:     "info",
}

var partNames = map[PartKind]string{
	PartPlatformTop:          "Platform Top",
	PartPlatformTop2D:        "Platform Top Template",
	PartBearingNorthEast:     "North East Bearing",
	PartBearingNorthWest:     "North West Bearing",
	PartTemplateBearingSouth: "Template Bearing South",
	PartBearingFrontSouth:    "Front South Bearing",
	PartInformationPlate:     "Information Plate",
}

// Template type names used by the web front end.
var templateAliases = map[string]PartKind{
	"tpt-svg":            PartPlatformTop2D,
	"tpt-png":            PartPlatformTop2D,
	"tpt-pdf":            PartPlatformTop2D,
	"bearing-svg":        PartTemplateBearingSouth,
	"front-bearing":      PartBearingFrontSouth,
	"north-east-bearing": PartBearingNorthEast,
	"north-west-bearing": PartBearingNorthWest,
	"info-plate":         PartInformationPlate,
}

// Code is the short identifier used in file names and requests.
func (k PartKind) Code() string {
	if c, ok := partCodes[k]; ok {
		return c
	}
	return "unknown"
}

func (k PartKind) String() string {
	if n, ok := partNames[k]; ok {
		return n
	}
	return fmt.Sprintf("PartKind(%d)", int(k))
}

// Is2D reports whether the part is a flat drawing rather than a solid.
func (k PartKind) Is2D() bool {
	return k == PartPlatformTop2D
}

// Valid reports whether k names a known part.
func (k PartKind) Valid() bool {
	_, ok := partCodes[k]
	return ok
}

// ParsePartKind accepts a part code ("bne") or a front-end template type
// ("north-east-bearing").
func ParsePartKind(raw string) (PartKind, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return PartUnknown, fmt.Errorf("%w: part type is required", ErrInvalidParameter)
	}
	for kind, code := range partCodes {
		if code == key {
			return kind, nil
		}
	}
	if kind, ok := templateAliases[key]; ok {
		return kind, nil
	}
	if strings.HasPrefix(key, "tpt-") {
		return PartPlatformTop2D, nil
	}
	return PartUnknown, fmt.Errorf("%w: unknown part type %q", ErrInvalidParameter, raw)
}

// MarshalText implements encoding.TextMarshaler using the part code.
func (k PartKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("model: cannot marshal %s", k)
	}
	return []byte(k.Code()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *PartKind) UnmarshalText(text []byte) error {
	parsed, err := ParsePartKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
