// Package names implements the archive and member filename grammar used by
// the response pipeline: `<prefix><platform><8-digit-date>-<seq>[-R].zip`,
// prefix one of RE_PRO_, RE_PRE_ (standard) or RE_ESP_ (special).
package names

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cgdops/rtaingest/internal/util"
)

const (
	PrefixStandard   = "RE_PRO_"
	PrefixPrevalided = "RE_PRE_"
	PrefixSpecial    = "RE_ESP_"

	// MemberMarker is the prefix every extracted member must carry.
	MemberMarker = "RE_"

	// PlatformName is the display name of the emitting platform, used in
	// operator notifications.
	PlatformName = "STRATUS"
)

// Response type codes recorded on a processing run.
const (
	TypeDebitReversal = "01"
	TypeReintegro     = "02"
	TypeSpecial       = "03"
	TypeInvalid       = "00"
)

// ArchiveFileName returns the object name after the inbox prefix, i.e. the
// path segment following the first "/". Empty when the key has no folder.
func ArchiveFileName(key string) string {
	_, after, found := strings.Cut(key, "/")
	if !found {
		return ""
	}
	return after
}

// Basename returns the part of a key after the last "/".
func Basename(key string) string {
	if idx := strings.LastIndex(key, "/"); idx >= 0 {
		return key[idx+1:]
	}
	return key
}

// TrimExtension drops the 4-character extension block from an object name.
func TrimExtension(name string) string {
	if len(name) <= 4 {
		return ""
	}
	return name[:len(name)-4]
}

// RecordKey normalizes an object key to the name stored on the file record:
// special archives keep their full basename, standard archives keep the part
// after the prefix. The second return reports whether a known prefix was
// found at all.
func RecordKey(key string) (string, bool) {
	stripped := TrimExtension(key)
	for _, prefix := range []string{PrefixStandard, PrefixSpecial, PrefixPrevalided} {
		idx := strings.LastIndex(stripped, prefix)
		if idx < 0 {
			continue
		}
		if prefix == PrefixSpecial {
			return Basename(stripped), true
		}
		return stripped[idx+len(prefix):], true
	}
	return "", false
}

// IsSpecial reports whether the key's basename carries the special prefix.
func IsSpecial(key string) bool {
	return strings.HasPrefix(Basename(key), PrefixSpecial)
}

// WellFormedSpecial validates a special archive name against the configured
// fixed blocks: the basename must open with start (21 characters), close with
// end immediately before the extension, and embed a YYYYMMDD date at
// positions 21..28 no later than today.
func WellFormedSpecial(key, start, end string, now time.Time) bool {
	base := Basename(key)
	if len(base) < 38 {
		return false
	}
	if base[:21] != start || base[len(base)-9:len(base)-4] != end {
		return false
	}
	fileDate, err := util.ParseNameDate(base[21:29])
	if err != nil {
		return false
	}
	nowB := now.In(util.BogotaLocation())
	today := time.Date(nowB.Year(), nowB.Month(), nowB.Day(), 0, 0, 0, 0, util.BogotaLocation())
	return !fileDate.After(today)
}

// SpecialFileID synthesizes the numeric file id for a special archive from
// its record key: embedded date + platform "01" + file type "05" + the last
// four characters (the sequence block).
func SpecialFileID(recordKey string) (int64, error) {
	if len(recordKey) < 29 {
		return 0, fmt.Errorf("record key '%s' too short for id synthesis", recordKey)
	}
	raw := recordKey[21:29] + "01" + "05" + recordKey[len(recordKey)-4:]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("synthesized id '%s' is not numeric: %w", raw, err)
	}
	return id, nil
}

// NameDate returns the YYYYMMDD block of a special record key.
func NameDate(recordKey string) string {
	if len(recordKey) < 29 {
		return ""
	}
	return recordKey[21:29]
}

// ResponseType derives the run's response type code from the archive name:
// a standard archive is a reintegro when "-R" sits right before the
// extension and a debit/reversal otherwise; special archives are always
// type 03. Unrecognized prefixes yield no type.
func ResponseType(zipName string) string {
	base := Basename(zipName)
	standard := strings.HasPrefix(base, PrefixStandard) || strings.HasPrefix(base, PrefixPrevalided)
	switch {
	case standard && len(base) >= 6 && base[len(base)-6:len(base)-4] == "-R":
		return TypeReintegro
	case standard:
		return TypeDebitReversal
	case strings.HasPrefix(base, PrefixSpecial):
		return TypeSpecial
	}
	return ""
}

// MemberType extracts a member's type classifier: the block after the last
// "-" with the extension removed. Names without at least two dashes carry no
// classifier.
func MemberType(name string) string {
	parts := strings.Split(name, "-")
	if len(parts) < 3 {
		return ""
	}
	last := parts[len(parts)-1]
	if dot := strings.Index(last, "."); dot >= 0 {
		return last[:dot]
	}
	return last
}

// GroupToken returns the block a member shares with its archive: everything
// after the last "_" up to the first "-". Members of one archive must all
// agree on it.
func GroupToken(name string) string {
	after := name
	if idx := strings.LastIndex(name, "_"); idx >= 0 {
		after = name[idx+1:]
	}
	if dash := strings.Index(after, "-"); dash >= 0 {
		return after[:dash]
	}
	return after
}
