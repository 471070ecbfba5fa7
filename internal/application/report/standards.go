package report

import (
	"errors"
	"strings"

	"github.com/Fairfood/Navigate-Server/internal/domain"
)

// ErrUnknownStandard is returned for a standard key outside the fixed table.
var ErrUnknownStandard = errors.New("unknown compliance standard")

// StandardKey identifies a compliance standard.
type StandardKey string

const (
	RainforestAlliance StandardKey = "RAINFOREST_ALLIANCE"
	Fairtrade          StandardKey = "FAIRTRADE"
	EUDR               StandardKey = "EUDR"
)

// Standard judges tree cover loss from MinYear onward at one canopy density.
// Any loss at all fails the standard.
type Standard struct {
	Key           StandardKey          `json:"key"`
	Name          string               `json:"name"`
	MinYear       int                  `json:"min_year"`
	CanopyDensity domain.CanopyDensity `json:"canopy_density"`
	Info          string               `json:"info"`
}

// Standards is the fixed table in report column order.
var Standards = []Standard{
	{
		Key:           RainforestAlliance,
		Name:          "Rainforest Alliance",
		MinYear:       2014,
		CanopyDensity: domain.CanopyDensity10,
		Info: "Monitoring tree cover loss in regions with a canopy density of 10% or higher, " +
			"spanning from 2014 to present. All instances of even minimal canopy loss are considered unacceptable.",
	},
	{
		Key:           Fairtrade,
		Name:          "Fairtrade",
		MinYear:       2019,
		CanopyDensity: domain.CanopyDensity10,
		Info: "Monitoring tree cover loss in regions with a canopy density of 10% or higher, " +
			"spanning from 2019 to the present. All instances of even minimal canopy loss are considered unacceptable.",
	},
	{
		Key:           EUDR,
		Name:          "EUDR",
		MinYear:       2020,
		CanopyDensity: domain.CanopyDensity30,
		Info: "Monitoring tree cover loss in regions with a canopy density of 30% or higher, " +
			"spanning from 2020 to the present. All instances of even minimal canopy loss are considered unacceptable.",
	},
}

// legacy spelling still sent by older dashboard builds
var standardAliases = map[string]StandardKey{
	"RAINFOREST_ALLIENCE": RainforestAlliance,
}

// LookupStandard resolves a key case-insensitively.
func LookupStandard(key string) (Standard, error) {
	k := strings.ToUpper(strings.TrimSpace(key))
	if alias, ok := standardAliases[k]; ok {
		k = string(alias)
	}
	for _, s := range Standards {
		if string(s.Key) == k {
			return s, nil
		}
	}
	return Standard{}, ErrUnknownStandard
}

// StandardKeys lists the keys in column order.
func StandardKeys() []StandardKey {
	keys := make([]StandardKey, 0, len(Standards))
	for _, s := range Standards {
		keys = append(keys, s.Key)
	}
	return keys
}
