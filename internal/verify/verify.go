// Package verify classifies an expanded archive's member set against the
// fixed control profiles the switch emits. The classifier is closed: three
// profiles keyed by exact member count plus a keyword set, everything else
// invalid.
package verify

import (
	"strings"

	"github.com/cgdops/rtaingest/internal/names"
)

// Profiles carries the keyword sets for the supported response profiles.
// Extending supported shapes means adding a row here and a case in Classify.
type Profiles struct {
	DebitReversal []string // 5 members
	Reintegros    []string // 3 members
	Especiales    []string // 2 members
}

// Result is the verification outcome for one member listing.
type Result struct {
	Valid        bool
	Matches      []string
	AllMarked    bool // every member starts with the expected marker
	Members      []string
	ResponseType string
}

// Classify inspects a working-folder listing and returns the matched
// response profile. Exactly 5 members are checked against the
// debit/reversal keywords, 3 against the reintegro keywords, 2 against the
// special keywords; any other count, or a count hit with zero keyword hits,
// is invalid with type 00. A keyword matches when any member name contains
// it.
func Classify(members []string, profiles Profiles) Result {
	allMarked := true
	for _, member := range members {
		if !strings.HasPrefix(member, names.MemberMarker) {
			allMarked = false
			break
		}
	}

	var keywords []string
	var responseType string
	switch len(members) {
	case 5:
		keywords, responseType = profiles.DebitReversal, names.TypeDebitReversal
	case 3:
		keywords, responseType = profiles.Reintegros, names.TypeReintegro
	case 2:
		keywords, responseType = profiles.Especiales, names.TypeSpecial
	default:
		return Result{AllMarked: allMarked, ResponseType: names.TypeInvalid}
	}

	matches := matchKeywords(members, keywords)
	if len(matches) == 0 {
		return Result{AllMarked: allMarked, ResponseType: names.TypeInvalid}
	}

	return Result{
		Valid:        true,
		Matches:      matches,
		AllMarked:    allMarked,
		Members:      members,
		ResponseType: responseType,
	}
}

func matchKeywords(members, keywords []string) []string {
	var matches []string
	for _, keyword := range keywords {
		for _, member := range members {
			if strings.Contains(member, keyword) {
				matches = append(matches, keyword)
				break
			}
		}
	}
	return matches
}
