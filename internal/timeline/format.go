package timeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/lever-lab/backend/internal/storage/models"
)

var monthAbbr = [...]string{"Ene", "Feb", "Mar", "Abr", "May", "Jun", "Jul", "Ago", "Sep", "Oct", "Nov", "Dic"}

// IsSellOut reports whether a source reports point-of-sale data anchored at
// the end of each period.
func IsSellOut(source string) bool {
	s := strings.ToLower(source)
	return strings.Contains(s, "sell out") || strings.Contains(s, "sell-out") || strings.Contains(s, "sellout")
}

// DisplayDate is the period end for sell-out sources and the start otherwise.
func DisplayDate(p models.Period, sellOut bool) time.Time {
	if sellOut {
		return p.EndDate
	}
	return p.StartDate
}

// FormatDate renders "31 Ene" for sell-out sources and "01/03" otherwise.
func FormatDate(d time.Time, sellOut bool) string {
	if sellOut {
		return fmt.Sprintf("%02d %s", d.Day(), monthAbbr[d.Month()-1])
	}
	return d.Format("02/01")
}
