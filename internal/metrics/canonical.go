// canonical.go - Launch monitor metric vocabulary and name normalization

package metrics

import (
	"sort"
	"strings"
	"unicode"
)

// Definition is one canonical metric column.
type Definition struct {
	Key     string
	Title   string
	Unit    string
	Aliases []string
}

var definitions = []Definition{
	{Key: "club_speed", Title: "Club Speed", Unit: "mph", Aliases: []string{"club speed", "clubhead speed", "club head speed"}},
	{Key: "ball_speed", Title: "Ball Speed", Unit: "mph", Aliases: []string{"ball speed"}},
	{Key: "smash_factor", Title: "Smash Factor", Aliases: []string{"smash factor", "smash"}},
	{Key: "attack_angle", Title: "Attack Angle", Unit: "deg", Aliases: []string{"attack angle", "angle of attack", "attack ang"}},
	{Key: "club_path", Title: "Club Path", Unit: "deg", Aliases: []string{"club path"}},
	{Key: "face_angle", Title: "Face Angle", Unit: "deg", Aliases: []string{"face angle"}},
	{Key: "face_to_path", Title: "Face To Path", Unit: "deg", Aliases: []string{"face to path", "face path"}},
	{Key: "dynamic_loft", Title: "Dynamic Loft", Unit: "deg", Aliases: []string{"dynamic loft", "dyn loft"}},
	{Key: "spin_loft", Title: "Spin Loft", Unit: "deg", Aliases: []string{"spin loft"}},
	{Key: "swing_plane", Title: "Swing Plane", Unit: "deg", Aliases: []string{"swing plane"}},
	{Key: "swing_direction", Title: "Swing Direction", Unit: "deg", Aliases: []string{"swing direction", "swing dir"}},
	{Key: "low_point", Title: "Low Point", Unit: "in", Aliases: []string{"low point"}},
	{Key: "launch_angle", Title: "Launch Angle", Unit: "deg", Aliases: []string{"launch angle", "launch ang", "vertical launch"}},
	{Key: "launch_direction", Title: "Launch Direction", Unit: "deg", Aliases: []string{"launch direction", "launch dir", "horizontal launch"}},
	{Key: "spin_rate", Title: "Spin Rate", Unit: "rpm", Aliases: []string{"spin rate", "total spin", "spin"}},
	{Key: "spin_axis", Title: "Spin Axis", Unit: "deg", Aliases: []string{"spin axis"}},
	{Key: "carry", Title: "Carry", Unit: "yds", Aliases: []string{"carry", "carry distance", "carry dist"}},
	{Key: "total", Title: "Total", Unit: "yds", Aliases: []string{"total", "total distance", "total dist"}},
	{Key: "side", Title: "Side", Unit: "yds", Aliases: []string{"side", "carry side", "side total"}},
	{Key: "height", Title: "Height", Unit: "ft", Aliases: []string{"height", "max height", "apex"}},
	{Key: "land_angle", Title: "Land Angle", Unit: "deg", Aliases: []string{"land angle", "landing angle", "land ang"}},
	{Key: "hang_time", Title: "Hang Time", Unit: "s", Aliases: []string{"hang time"}},
	{Key: "curve", Title: "Curve", Unit: "yds", Aliases: []string{"curve"}},
}

type aliasEntry struct {
	alias string
	def   *Definition
}

var (
	byAlias = map[string]*Definition{}
	byKey   = map[string]*Definition{}
	// aliasesLongestFirst lets "total spin" claim its span before "total".
	aliasesLongestFirst []aliasEntry
)

func init() {
	for i := range definitions {
		d := &definitions[i]
		byKey[d.Key] = d
		byAlias[normalizeName(d.Key)] = d
		for _, a := range d.Aliases {
			byAlias[a] = d
			aliasesLongestFirst = append(aliasesLongestFirst, aliasEntry{alias: a, def: d})
		}
	}
	sort.SliceStable(aliasesLongestFirst, func(i, j int) bool {
		return len(aliasesLongestFirst[i].alias) > len(aliasesLongestFirst[j].alias)
	})
}

// Lookup returns the definition for a canonical key.
func Lookup(key string) (Definition, bool) {
	d, ok := byKey[key]
	if !ok {
		return Definition{}, false
	}
	return *d, true
}

// Canonicalize maps a free-form metric name ("Club Speed", "clubSpeed",
// "CLUB_SPEED", "Angle of attack") to its canonical key. Names with no exact
// alias fall back to the closest alias within a small edit distance.
func Canonicalize(title string) (string, bool) {
	name := normalizeName(title)
	if d, ok := byAlias[name]; ok {
		return d.Key, true
	}
	if d, _ := closestAlias(name); d != nil {
		return d.Key, true
	}
	return "", false
}

// normalizeName splits camelCase, lowercases and collapses any run of
// non-alphanumerics into a single space.
func normalizeName(s string) string {
	var b strings.Builder
	var prev rune
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) && unicode.IsLower(prev) {
			b.WriteRune(' ')
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(' ')
		}
		prev = r
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
