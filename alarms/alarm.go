// Package alarms implements C7: periodic evaluation of saved alarms against
// the index, with throttling, grouping, and multi-channel dispatch.
package alarms

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/r3elabs/logwatch/infrastructure/errors"
)

// Channel is an external notification sink (§4.7).
type Channel string

const (
	ChannelEmail     Channel = "EMAIL"
	ChannelSlack     Channel = "SLACK"
	ChannelWebhook   Channel = "WEBHOOK"
	ChannelPagerDuty Channel = "PAGERDUTY"
	ChannelOpsgenie  Channel = "OPSGENIE"
)

// Alarm is a saved alerting rule (§4.7).
type Alarm struct {
	ID                     string
	Name                   string
	Query                  string
	Condition              string
	Threshold              float64
	TimeWindowMinutes      int
	ThrottleWindowMinutes  int
	MaxNotificationsPerWindow int
	GroupingKey            string
	GroupingWindowMs       int64
	Channels               []Channel
	Enabled                bool
}

// Validate enforces §4.7's validation rules.
func Validate(a Alarm, existingNames map[string]bool) error {
	if strings.TrimSpace(a.Name) == "" {
		return errors.MissingParameter("name")
	}
	if strings.TrimSpace(a.Query) == "" {
		return errors.MissingParameter("query")
	}
	if strings.TrimSpace(a.Condition) == "" {
		return errors.MissingParameter("condition")
	}
	if a.Threshold < 0 {
		return errors.OutOfRange("threshold", 0, nil)
	}
	if a.TimeWindowMinutes <= 0 {
		return errors.InvalidInput("timeWindowMinutes", "must be greater than zero")
	}
	if existingNames[a.Name] {
		return errors.AlreadyExists("alarm", a.Name)
	}
	return nil
}

// conditionRE parses the "count (op) threshold" condition prefix, §4.7.
var conditionRE = regexp.MustCompile(`^count\s*(>=|<=|==|=|>|<)`)

// ParseCondition extracts the comparison operator from an alarm's condition
// string. ok is false for an unrecognized condition (§4.7: "Unknown
// conditions → no trigger (warn)").
func ParseCondition(condition string) (op string, ok bool) {
	m := conditionRE.FindStringSubmatch(strings.TrimSpace(condition))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Evaluate compares matchCount against threshold using op, per §4.7.
func Evaluate(op string, matchCount int, threshold float64) bool {
	count := float64(matchCount)
	switch op {
	case ">":
		return count > threshold
	case ">=":
		return count >= threshold
	case "<":
		return count < threshold
	case "<=":
		return count <= threshold
	case "=", "==":
		return count == threshold
	default:
		return false
	}
}

// RenderMessage formats a single-alarm notification body.
func RenderMessage(a Alarm, matchCount int) string {
	return fmt.Sprintf("Alarm %q triggered: %d matches for query %q (threshold %s %s)",
		a.Name, matchCount, a.Query, a.Condition, strconv.FormatFloat(a.Threshold, 'f', -1, 64))
}

// RenderGroupedMessage formats a combined notification for a set of alarms
// sharing a grouping key (§4.7).
func RenderGroupedMessage(groupingKey string, members []GroupMember) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Grouped alarms [%s]:\n", groupingKey)
	for _, m := range members {
		fmt.Fprintf(&b, "- %s (%d matches)\n", m.Alarm.Name, m.MatchCount)
	}
	return b.String()
}

// GroupMember is one alarm contributing to a pending grouped notification.
type GroupMember struct {
	Alarm       Alarm
	MatchCount  int
	TriggeredAt int64
}
