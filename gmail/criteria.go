package gmail

import "strings"

// Criteria selects which messages a fetch returns. Exactly one selector is
// active per value: explicit UIDs, a raw Gmail query, or ALL.
type Criteria struct {
	uids []string
	raw  string
}

// All matches every message in the selected folder.
func All() Criteria { return Criteria{} }

// ByUIDs selects the given UIDs. Values are passed through to the UID SEARCH
// verbatim, so protocol ranges such as "12:18" work as the server defines
// them.
func ByUIDs(uids []string) Criteria {
	return Criteria{uids: append([]string(nil), uids...)}
}

// RawQuery selects messages matching a Gmail search query, sent as a quoted
// X-GM-RAW extension term.
func RawQuery(q string) Criteria { return Criteria{raw: q} }

// Translate applies the selection precedence: a non-empty UID list wins over
// a raw query, which wins over ALL.
func Translate(uids []string, rawQuery string) Criteria {
	if len(uids) > 0 {
		return ByUIDs(uids)
	}
	if rawQuery != "" {
		return RawQuery(rawQuery)
	}
	return All()
}

// SearchExpr renders the criteria as a single UID SEARCH expression.
func (c Criteria) SearchExpr() string {
	switch {
	case len(c.uids) > 0:
		return "UID " + strings.Join(c.uids, ",")
	case c.raw != "":
		return "X-GM-RAW " + quoteString(c.raw)
	default:
		return "ALL"
	}
}

// quoteString renders s as an RFC 3501 quoted string. Embedded backslash and
// quote characters are escaped so the server reads them as data, not as
// delimiters.
func quoteString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
