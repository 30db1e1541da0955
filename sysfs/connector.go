package sysfs

import (
	"sort"
	"strconv"
	"strings"
)

// ConnectorRecord is one entry under /sys/class/drm.
type ConnectorRecord struct {
	ConnectorName string
	ConnectorID   int
	CardNum       int
	ConnType      string
	TypeIndex     int

	I2CBusno  int // -1 if unknown
	BaseBusno int // -1 if not a DP branch

	EDIDBytes []byte
	Status    string // "connected" | "disconnected"
	Enabled   bool

	IsDP bool
}

// connTypeOrder is the fixed total order connectors sort by.
var connTypeOrder = []string{
	"eDP", "LVDS", "DP", "HDMI-A", "HDMI-B", "DVI-D", "DVI-I", "DVI-A", "VGA", "TV", "Virtual",
}

func typeRank(t string) int {
	for i, c := range connTypeOrder {
		if c == t {
			return i
		}
	}
	return len(connTypeOrder) // "other"
}

// parseConnectorName parses "cardN-<TYPE>-<M>" into its three components.
// It returns ok=false if the name doesn't fit the pattern.
func parseConnectorName(name string) (cardNum int, connType string, idx int, ok bool) {
	if !strings.HasPrefix(name, "card") {
		return 0, "", 0, false
	}
	rest := name[len("card"):]
	dash := strings.IndexByte(rest, '-')
	if dash < 0 {
		return 0, "", 0, false
	}
	cardStr := rest[:dash]
	cardNum, err := strconv.Atoi(cardStr)
	if err != nil {
		return 0, "", 0, false
	}
	tail := rest[dash+1:]
	lastDash := strings.LastIndexByte(tail, '-')
	if lastDash < 0 {
		return 0, "", 0, false
	}
	connType = tail[:lastDash]
	idxStr := tail[lastDash+1:]
	idx, err = strconv.Atoi(idxStr)
	if err != nil {
		return 0, "", 0, false
	}
	return cardNum, connType, idx, true
}

// CompareConnectors implements the canonical ordering: card number, then
// connector type rank, then numeric suffix.
func CompareConnectors(a, b *ConnectorRecord) bool {
	if a.CardNum != b.CardNum {
		return a.CardNum < b.CardNum
	}
	ra, rb := typeRank(a.ConnType), typeRank(b.ConnType)
	if ra != rb {
		return ra < rb
	}
	return a.TypeIndex < b.TypeIndex
}

// SortConnectors sorts recs in place using CompareConnectors.
func SortConnectors(recs []ConnectorRecord) {
	sort.Slice(recs, func(i, j int) bool {
		return CompareConnectors(&recs[i], &recs[j])
	})
}

func isDPConnType(connType string) bool {
	return connType == "DP" || strings.HasPrefix(connType, "DP-")
}
