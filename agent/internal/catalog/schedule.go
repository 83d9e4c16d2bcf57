package catalog

import (
	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
)

// ScheduleParser is the cron dialect accepted for scraping schedules.
var ScheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule parses a scraping schedule expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	s, err := ScheduleParser.Parse(expr)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid schedule %q", expr)
	}
	return s, nil
}
