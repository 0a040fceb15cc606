package config

import "github.com/robfig/cron/v3"

// standardParser accepts the usual 5-field cron expression, interpreted
// against local time.
var standardParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron validates a cron expression at config-load time so a bad
// vacuum_schedule is a fatal startup error rather than a runtime surprise.
func ParseCron(expr string) (cron.Schedule, error) {
	return standardParser.Parse(expr)
}
