// Package identity builds and parses the canonical UIDs and content
// hashes used across the catalog. UIDs are human-readable handles, not
// surrogate keys; hashes are the content-addressable identity used for
// reduction-task deduplication.
package identity

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/toltec-astro/tolteca-catalog/internal/catalogerr"
)

// RawObsIdentity is the quartet that uniquely identifies one logical
// raw observation.
type RawObsIdentity struct {
	Master    string
	Obsnum    int
	Subobsnum int
	Scannum   int
}

var rawObsUIDPattern = regexp.MustCompile(`^([a-z_]+)-(\d+)-(\d+)-(\d+)$`)

// RawObsUID formats the quartet as "{master}-{obsnum}-{subobsnum}-{scannum}".
// Master is lowercased; integers are unpadded decimal.
func RawObsUID(master string, obsnum, subobsnum, scannum int) string {
	return fmt.Sprintf("%s-%d-%d-%d", strings.ToLower(master), obsnum, subobsnum, scannum)
}

// ReducedObsUID is the raw UID with a "-reduced" suffix.
func ReducedObsUID(master string, obsnum, subobsnum, scannum int) string {
	return RawObsUID(master, obsnum, subobsnum, scannum) + "-reduced"
}

// GroupUID formats a group name as "{master}-{obsnum}-g{n_items}-{suffix}".
func GroupUID(master string, obsnum, nItems int, suffix string) string {
	return fmt.Sprintf("%s-%d-g%d-%s", strings.ToLower(master), obsnum, nItems, suffix)
}

// CalGroupUID is GroupUID with suffix "cal".
func CalGroupUID(master string, obsnum, nItems int) string {
	return GroupUID(master, obsnum, nItems, "cal")
}

// ParseRawObsUID reverses RawObsUID, stripping an optional "-reduced"
// suffix first. Returns catalogerr with Kind=ParseFailure when the UID
// does not match the closed grammar.
func ParseRawObsUID(uid string) (RawObsIdentity, error) {
	trimmed := strings.TrimSuffix(uid, "-reduced")
	m := rawObsUIDPattern.FindStringSubmatch(trimmed)
	if m == nil {
		return RawObsIdentity{}, catalogerr.New(catalogerr.ParseFailure, "ParseRawObsUID",
			fmt.Errorf("invalid raw obs uid %q", uid))
	}
	obsnum, _ := strconv.Atoi(m[2])
	subobsnum, _ := strconv.Atoi(m[3])
	scannum, _ := strconv.Atoi(m[4])
	return RawObsIdentity{
		Master:    m[1],
		Obsnum:    obsnum,
		Subobsnum: subobsnum,
		Scannum:   scannum,
	}, nil
}
