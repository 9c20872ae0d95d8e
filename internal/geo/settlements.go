package geo

import (
	"strings"
	"sync"

	"github.com/example/carpool-matching/internal/models"
)

// Built-in settlement table. Loaded once, read-only afterwards, shared by
// reference across concurrent resolvers.
var (
	settlementsOnce sync.Once
	settlements     map[string]models.Coord
)

// locality-type prefixes that users often include but the table omits
var localityPrefixes = []string{"kibbutz ", "moshav ", "kfar ", "city of ", "the "}

func settlementTable() map[string]models.Coord {
	settlementsOnce.Do(func() {
		settlements = map[string]models.Coord{
			"tel aviv":      {Lat: 32.0853, Lon: 34.7818},
			"jerusalem":     {Lat: 31.7683, Lon: 35.2137},
			"haifa":         {Lat: 32.7940, Lon: 34.9896},
			"beer sheva":    {Lat: 31.2518, Lon: 34.7913},
			"rishon lezion": {Lat: 31.9730, Lon: 34.7925},
			"petah tikva":   {Lat: 32.0871, Lon: 34.8878},
			"ashdod":        {Lat: 31.8014, Lon: 34.6435},
			"netanya":       {Lat: 32.3215, Lon: 34.8532},
			"holon":         {Lat: 32.0103, Lon: 34.7792},
			"bnei brak":     {Lat: 32.0807, Lon: 34.8338},
			"ramat gan":     {Lat: 32.0684, Lon: 34.8248},
			"rehovot":       {Lat: 31.8928, Lon: 34.8113},
			"ashkelon":      {Lat: 31.6688, Lon: 34.5743},
			"bat yam":       {Lat: 32.0171, Lon: 34.7454},
			"herzliya":      {Lat: 32.1624, Lon: 34.8447},
			"kfar saba":     {Lat: 32.1858, Lon: 34.9077},
			"hadera":        {Lat: 32.4340, Lon: 34.9196},
			"modiin":        {Lat: 31.8928, Lon: 35.0124},
			"nazareth":      {Lat: 32.6996, Lon: 35.3035},
			"lod":           {Lat: 31.9467, Lon: 34.8903},
			"ramla":         {Lat: 31.9288, Lon: 34.8667},
			"raanana":       {Lat: 32.1836, Lon: 34.8718},
			"givatayim":     {Lat: 32.0723, Lon: 34.8125},
			"kiryat gat":    {Lat: 31.6100, Lon: 34.7642},
			"kiryat ono":    {Lat: 32.0636, Lon: 34.8553},
			"eilat":         {Lat: 29.5577, Lon: 34.9519},
			"tiberias":      {Lat: 32.7922, Lon: 35.5312},
			"afula":         {Lat: 32.6078, Lon: 35.2897},
			"beit shemesh":  {Lat: 31.7304, Lon: 34.9886},
			"dimona":        {Lat: 31.0700, Lon: 35.0333},
			"yavne":         {Lat: 31.8781, Lon: 34.7384},
			"sderot":        {Lat: 31.5240, Lon: 34.5965},
		}
	})
	return settlements
}

// NormalizeName canonicalizes a place name for lookup and caching:
// lower-case, trimmed, inner whitespace collapsed.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// lookupSettlement tries the normalized name as-is, then retries with
// known locality-type prefixes stripped.
func lookupSettlement(name string) (models.Coord, bool) {
	table := settlementTable()
	if c, ok := table[name]; ok {
		return c, true
	}
	for _, p := range localityPrefixes {
		if rest, ok := strings.CutPrefix(name, p); ok {
			if c, ok := table[rest]; ok {
				return c, true
			}
		}
	}
	return models.Coord{}, false
}
