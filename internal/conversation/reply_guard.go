package conversation

import (
	"regexp"
	"strings"
)

// GuardResult is the outcome of scrubbing an outbound reply.
type GuardResult struct {
	Reply   string
	Reasons []string
	// Blocked means nothing safe remained and Reply is the fallback.
	Blocked bool
}

type replyPattern struct {
	re     *regexp.Regexp
	reason string
	block  bool
}

var replyPatterns = []replyPattern{
	{regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`), "uuid", false},
	{regexp.MustCompile(`(?i)\b(thread|run|call|msg|asst)_[A-Za-z0-9]{8,}\b`), "provider_id", false},
	{regexp.MustCompile(`(?i)\b(catalog_search|check_availability|create_order|get_order_status|get_bank_accounts|schedule_follow_up|send_response|search_knowledge)\b`), "tool_name", false},
	{regexp.MustCompile(`(?i)\b(product_id|contact_id|org_id|order_id)\b\s*[:=]?\s*\S*`), "internal_field", false},
	{regexp.MustCompile(`(?m)^\s*(goroutine \d+ \[|panic:|\s+at [\w.$]+\(|Traceback \(most recent call last\))`), "stack_trace", true},
	{regexp.MustCompile(`\S+\.go:\d+`), "source_location", true},
	{regexp.MustCompile(`(?i)(postgres|postgresql|redis|mysql)://\S+`), "database_url", true},
	{regexp.MustCompile(`(?i)\b(sk|pk)-[A-Za-z0-9_-]{16,}\b`), "api_key", true},
	{regexp.MustCompile(`\bAKIA[A-Z0-9]{16}\b`), "aws_key", true},
	{regexp.MustCompile(`(?m)^\s*(conversation|orders|catalog|contacts|scheduling|knowledge): [a-z ]+: `), "internal_error", true},
}

var spaceRun = regexp.MustCompile(`[ \t]{2,}`)

// ScrubReply removes internal identifiers from reply. If it contains
// stack traces, credentials or raw internal errors the whole reply is
// replaced with FallbackReply.
func ScrubReply(reply string) GuardResult {
	out := GuardResult{Reply: reply}
	if strings.TrimSpace(reply) == "" {
		out.Reply = FallbackReply
		out.Blocked = true
		out.Reasons = []string{"empty"}
		return out
	}
	for _, p := range replyPatterns {
		if !p.re.MatchString(out.Reply) {
			continue
		}
		out.Reasons = append(out.Reasons, p.reason)
		if p.block {
			return GuardResult{Reply: FallbackReply, Reasons: out.Reasons, Blocked: true}
		}
		out.Reply = p.re.ReplaceAllString(out.Reply, "")
	}
	out.Reply = strings.TrimSpace(spaceRun.ReplaceAllString(out.Reply, " "))
	out.Reply = strings.ReplaceAll(out.Reply, " .", ".")
	out.Reply = strings.ReplaceAll(out.Reply, "()", "")
	if out.Reply == "" {
		return GuardResult{Reply: FallbackReply, Reasons: out.Reasons, Blocked: true}
	}
	return out
}
