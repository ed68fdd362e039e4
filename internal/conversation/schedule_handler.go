package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/storefront-ai/internal/events"
	"github.com/wolfman30/storefront-ai/internal/scheduling"
)

const scheduleExtractionInstructions = `Extract the follow-up the customer wants to book from the conversation.
Today is %s (%s), time zone %s. Resolve relative dates such as "tomorrow" or "next Friday" against today.
Reply with JSON only: {"date":"YYYY-MM-DD"|null,"time":"HH:MM" (24h)|null,"subject":string|null}
Use null for anything the customer has not said yet.`

// ScheduleHandler books follow-ups from free-text requests.
type ScheduleHandler struct {
	deps *Deps
}

func NewScheduleHandler(deps *Deps) *ScheduleHandler {
	if deps == nil || deps.LLM == nil || deps.FollowUps == nil {
		panic("conversation: schedule handler requires an llm and a follow-up store")
	}
	deps.normalize()
	return &ScheduleHandler{deps: deps}
}

type scheduleRequest struct {
	Date    *string `json:"date"`
	Time    *string `json:"time"`
	Subject *string `json:"subject"`
}

func (h *ScheduleHandler) Handle(ctx context.Context, in TurnInput) (string, error) {
	ctx, span := conversationTracer.Start(ctx, "conversation.schedule.handle")
	defer span.End()

	loc := in.location()
	now := h.deps.Now().In(loc)
	instructions := fmt.Sprintf(scheduleExtractionInstructions, now.Format("2006-01-02"), now.Weekday(), loc.String())

	// Full recent history so "tomorrow at noon" can lean on earlier turns.
	var system []string
	system = append(system, instructions)
	if block := historyBlock(in.Context); block != "" {
		system = append(system, block)
	}
	resp, err := h.deps.LLM.Complete(ctx, promptRequest(h.deps.Model, system, in.Input, 128, 0))
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("conversation: schedule: extract: %w", err)
	}

	var req scheduleRequest
	if obj, ok := extractJSONObject(resp.Text); ok {
		_ = json.Unmarshal([]byte(obj), &req)
	}
	when, subject, missing := resolveSchedule(req, loc)
	if len(missing) > 0 {
		h.deps.State.MarkSchedulePending(in.ContactID, missing)
		return "Happy to set that up. Could you tell me " + joinNatural(missing) + "?", nil
	}
	if !when.After(now) {
		h.deps.State.MarkSchedulePending(in.ContactID, []string{"the date", "the time"})
		return "That time has already passed. What later date and time works for you?", nil
	}

	f, err := h.deps.FollowUps.Create(ctx, scheduling.FollowUp{
		OrgID:     in.OrgID,
		ContactID: in.ContactID,
		Subject:   subject,
		Summary:   truncate(in.Input, 500),
		When:      when,
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("conversation: schedule: create: %w", err)
	}
	h.deps.State.ClearSchedule(in.ContactID)
	h.deps.Events.FollowUpScheduled(ctx, events.FollowUpScheduledV1{
		FollowUpID: f.ID,
		OrgID:      f.OrgID,
		ContactID:  f.ContactID,
		Subject:    f.Subject,
		When:       f.When,
	})
	return fmt.Sprintf("Done! I'll get back to you about %s on %s.", subject, when.In(loc).Format("Mon, 02 Jan at 15:04")), nil
}

// resolveSchedule turns the extracted fields into a time in loc and lists
// what is still missing, in customer wording.
func resolveSchedule(req scheduleRequest, loc *time.Location) (time.Time, string, []string) {
	var missing []string
	var day time.Time
	if d := nonBlank(req.Date); d != nil {
		if parsed, err := time.ParseInLocation("2006-01-02", *d, loc); err == nil {
			day = parsed
		}
	}
	if day.IsZero() {
		missing = append(missing, "the date")
	}
	var (
		clock    time.Time
		hasClock bool
	)
	if t := nonBlank(req.Time); t != nil {
		for _, layout := range []string{"15:04", "15h04", "15h", "3:04 PM", "3 PM", "3PM"} {
			if parsed, err := time.Parse(layout, strings.ToLower(*t)); err == nil {
				clock, hasClock = parsed, true
				break
			}
			if parsed, err := time.Parse(layout, strings.ToUpper(*t)); err == nil {
				clock, hasClock = parsed, true
				break
			}
		}
	}
	if !hasClock {
		missing = append(missing, "the time")
	}
	subject := ""
	if s := nonBlank(req.Subject); s != nil {
		subject = *s
	}
	if subject == "" {
		missing = append(missing, "what it's about")
	}
	if len(missing) > 0 {
		return time.Time{}, subject, missing
	}
	when := time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, loc)
	return when, subject, nil
}
