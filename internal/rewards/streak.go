// internal/rewards/streak.go
package rewards

import (
	"sort"
	"time"

	"github.com/jason-s-yu/pikit/internal/models"
)

// StreakWindow is how many distinct reward dates are considered.
const StreakWindow = 30

// Streak counts consecutive UTC calendar days ending at the most recent date in dates.
// Duplicates and times of day are ignored; no dates means no streak.
func Streak(dates []time.Time) int {
	days := distinctDays(dates)
	if len(days) == 0 {
		return 0
	}
	if len(days) > StreakWindow {
		days = days[:StreakWindow]
	}
	streak := 1
	for i := 1; i < len(days); i++ {
		if !days[i].Equal(days[i-1].AddDate(0, 0, -1)) {
			break
		}
		streak++
	}
	return streak
}

// distinctDays returns the UTC dates in dates, most recent first.
func distinctDays(dates []time.Time) []time.Time {
	seen := make(map[time.Time]bool, len(dates))
	days := make([]time.Time, 0, len(dates))
	for _, t := range dates {
		d := models.Day(t)
		if seen[d] {
			continue
		}
		seen[d] = true
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].After(days[j]) })
	return days
}
