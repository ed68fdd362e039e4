package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/storefront-ai/internal/catalog"
	"github.com/wolfman30/storefront-ai/internal/events"
	"github.com/wolfman30/storefront-ai/internal/orders"
	"github.com/wolfman30/storefront-ai/internal/scheduling"
)

// Tool names exposed to the completion service.
const (
	ToolCatalogSearch     = "catalog_search"
	ToolCheckAvailability = "check_availability"
	ToolCreateOrder       = "create_order"
	ToolGetOrderStatus    = "get_order_status"
	ToolGetBankAccounts   = "get_bank_accounts"
	ToolScheduleFollowUp  = "schedule_follow_up"
	ToolSendResponse      = "send_response"
	ToolSearchKnowledge   = "search_knowledge"
)

// ErrInvalidArguments is returned by tools whose arguments fail to decode.
var ErrInvalidArguments = errors.New("invalid arguments")

// ToolDefinition describes a callable tool. Parameters is a JSON schema object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is one function invocation requested by a run.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolOutput answers exactly one ToolCall.
type ToolOutput struct {
	CallID string
	Output string
}

// ToolEnv scopes tool execution to one contact's run.
type ToolEnv struct {
	Turn TurnInput
	// Response is set by send_response.
	Response string
}

// ToolFunc executes a tool. The returned value is JSON-encoded as the output.
type ToolFunc func(ctx context.Context, env *ToolEnv, args json.RawMessage) (any, error)

type tool struct {
	def ToolDefinition
	fn  ToolFunc
}

// ToolDispatcher routes tool calls to their implementations.
type ToolDispatcher struct {
	tools map[string]tool
	deps  *Deps
}

// NewToolDispatcher registers the standard storefront tools backed by deps.
func NewToolDispatcher(deps *Deps) *ToolDispatcher {
	if deps == nil || deps.Catalog == nil || deps.Orders == nil {
		panic("conversation: tool dispatcher requires catalog and ledger")
	}
	deps.normalize()
	d := &ToolDispatcher{tools: make(map[string]tool), deps: deps}
	d.registerStandardTools()
	return d
}

// Register adds or replaces a tool.
func (d *ToolDispatcher) Register(def ToolDefinition, fn ToolFunc) {
	d.tools[def.Name] = tool{def: def, fn: fn}
}

// Definitions returns registered tools sorted by name.
func (d *ToolDispatcher) Definitions() []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(d.tools))
	for _, t := range d.tools {
		defs = append(defs, t.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Dispatch executes every call in order and returns one output per call.
// A failing or panicking call yields {"error": ...} without affecting the others.
func (d *ToolDispatcher) Dispatch(ctx context.Context, env *ToolEnv, calls []ToolCall) []ToolOutput {
	if env == nil {
		env = &ToolEnv{}
	}
	outputs := make([]ToolOutput, 0, len(calls))
	for _, call := range calls {
		outputs = append(outputs, ToolOutput{CallID: call.ID, Output: d.dispatchOne(ctx, env, call)})
	}
	return outputs
}

func (d *ToolDispatcher) dispatchOne(ctx context.Context, env *ToolEnv, call ToolCall) (output string) {
	ctx, span := conversationTracer.Start(ctx, "conversation.tool.dispatch")
	defer span.End()
	span.SetAttributes(attribute.String("tool", call.Name))

	start := time.Now()
	outcome := "ok"
	defer func() {
		if r := recover(); r != nil {
			d.deps.Logger.Error("tool panicked", "tool", call.Name, "panic", fmt.Sprint(r))
			outcome = "panic"
			output = errorOutput("internal error")
		}
		d.deps.Metrics.ObserveToolCall(call.Name, outcome)
		d.deps.Events.ToolDispatched(ctx, env.Turn.ContactID, env.Turn.OrgID, call.Name, outcome, time.Since(start).Milliseconds())
	}()

	t, ok := d.tools[call.Name]
	if !ok {
		outcome = "not_found"
		return errorOutput("tool not found")
	}
	args := json.RawMessage(strings.TrimSpace(call.Arguments))
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if !json.Valid(args) {
		outcome = "invalid_arguments"
		return errorOutput(ErrInvalidArguments.Error())
	}
	result, err := t.fn(ctx, env, args)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrInvalidArguments) {
			outcome = "invalid_arguments"
			return errorOutput(ErrInvalidArguments.Error())
		}
		outcome = "error"
		return errorOutput(err.Error())
	}
	b, err := json.Marshal(result)
	if err != nil {
		outcome = "error"
		return errorOutput("unencodable result")
	}
	return string(b)
}

func errorOutput(msg string) string {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return string(b)
}

func decodeArgs(args json.RawMessage, v any) error {
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}

func objectSchema(required []string, props map[string]any) map[string]any {
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

func (d *ToolDispatcher) registerStandardTools() {
	d.Register(ToolDefinition{
		Name:        ToolCatalogSearch,
		Description: "Search the store catalog by product name or description.",
		Parameters: objectSchema([]string{"query"}, map[string]any{
			"query":    prop("string", "What the customer is looking for. Empty lists everything."),
			"category": prop("string", "Optional category filter."),
		}),
	}, d.catalogSearch)

	d.Register(ToolDefinition{
		Name:        ToolCheckAvailability,
		Description: "Check whether a quantity of a product can be sold right now.",
		Parameters: objectSchema([]string{"product_id", "quantity"}, map[string]any{
			"product_id": prop("string", "Product id from catalog_search."),
			"quantity":   prop("integer", "Units requested."),
		}),
	}, d.checkAvailability)

	d.Register(ToolDefinition{
		Name:        ToolCreateOrder,
		Description: "Place an order once product, quantity and delivery address are confirmed by the customer.",
		Parameters: objectSchema([]string{"items", "address"}, map[string]any{
			"items": map[string]any{
				"type": "array",
				"items": objectSchema([]string{"product_id", "quantity"}, map[string]any{
					"product_id": prop("string", "Product id from catalog_search."),
					"quantity":   prop("integer", "Units to order."),
				}),
			},
			"address": prop("string", "Delivery address."),
		}),
	}, d.createOrder)

	d.Register(ToolDefinition{
		Name:        ToolGetOrderStatus,
		Description: "Look up one of this customer's orders by its 8-character reference.",
		Parameters: objectSchema([]string{"reference"}, map[string]any{
			"reference": prop("string", "Order reference, e.g. 1A2B3C4D."),
		}),
	}, d.getOrderStatus)

	d.Register(ToolDefinition{
		Name:        ToolGetBankAccounts,
		Description: "List the bank accounts and PIX keys the store accepts payments on.",
		Parameters:  objectSchema(nil, map[string]any{}),
	}, d.getBankAccounts)

	d.Register(ToolDefinition{
		Name:        ToolScheduleFollowUp,
		Description: "Book a follow-up with the customer at a date and time in the store's time zone.",
		Parameters: objectSchema([]string{"subject", "date", "time"}, map[string]any{
			"subject": prop("string", "What the follow-up is about."),
			"date":    prop("string", "YYYY-MM-DD"),
			"time":    prop("string", "HH:MM, 24h"),
			"summary": prop("string", "Optional notes for the store."),
		}),
	}, d.scheduleFollowUp)

	d.Register(ToolDefinition{
		Name:        ToolSendResponse,
		Description: "Send the final reply to the customer. Call this exactly once with the complete message.",
		Parameters: objectSchema([]string{"message"}, map[string]any{
			"message": prop("string", "Text to send to the customer."),
		}),
	}, sendResponse)

	d.Register(ToolDefinition{
		Name:        ToolSearchKnowledge,
		Description: "Search the store's knowledge base (hours, delivery, policies). Answer only from the returned facts.",
		Parameters: objectSchema([]string{"query"}, map[string]any{
			"query": prop("string", "The customer's question."),
		}),
	}, d.searchKnowledge)
}

type productView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       string `json:"price"`
	Stock       int    `json:"stock"`
}

func (d *ToolDispatcher) catalogSearch(ctx context.Context, env *ToolEnv, args json.RawMessage) (any, error) {
	var in struct {
		Query    string `json:"query"`
		Category string `json:"category"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	products, err := d.deps.Catalog.Search(ctx, env.Turn.OrgID, in.Query, in.Category)
	if err != nil {
		return nil, fmt.Errorf("catalog unavailable")
	}
	if len(products) > catalogListLimit {
		products = products[:catalogListLimit]
	}
	views := make([]productView, 0, len(products))
	for _, p := range products {
		views = append(views, productView{ID: p.ID, Name: p.Name, Description: p.Description, Price: p.Price(), Stock: p.Stock})
	}
	return map[string]any{"products": views}, nil
}

func (d *ToolDispatcher) checkAvailability(ctx context.Context, env *ToolEnv, args json.RawMessage) (any, error) {
	var in struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if in.ProductID == "" {
		return nil, fmt.Errorf("%w: product_id is required", ErrInvalidArguments)
	}
	notFound := catalog.Availability{Reason: catalog.ReasonNotFound}
	p, err := d.deps.Catalog.Get(ctx, in.ProductID)
	switch {
	case errors.Is(err, catalog.ErrProductNotFound):
		return notFound, nil
	case err != nil:
		return nil, fmt.Errorf("catalog unavailable")
	case p.OrgID != env.Turn.OrgID:
		return notFound, nil
	}
	avail, err := d.deps.Catalog.CheckAvailability(ctx, in.ProductID, in.Quantity)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			return notFound, nil
		}
		return nil, fmt.Errorf("catalog unavailable")
	}
	return avail, nil
}

func (d *ToolDispatcher) createOrder(ctx context.Context, env *ToolEnv, args json.RawMessage) (any, error) {
	var in struct {
		Items   []orders.ItemRequest `json:"items"`
		Address string               `json:"address"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	order, err := d.deps.Orders.Submit(ctx, orders.SubmitRequest{
		OrgID:     env.Turn.OrgID,
		ContactID: env.Turn.ContactID,
		Items:     in.Items,
		Address:   in.Address,
	})
	if err != nil {
		var rej *orders.RejectionError
		switch {
		case errors.As(err, &rej):
			d.deps.Metrics.ObserveOrderSubmission("rejected")
			d.deps.Events.OrderRejected(ctx, env.Turn.ContactID, env.Turn.OrgID, rej.Reason)
			out := map[string]any{"success": false, "reason": rej.Reason, "product": rej.ProductName, "requested": rej.Requested}
			if rej.CurrentStock != nil {
				out["current_stock"] = *rej.CurrentStock
			}
			return out, nil
		case errors.Is(err, orders.ErrInvalidOrder):
			return nil, fmt.Errorf("%w: %s", ErrInvalidArguments, strings.TrimPrefix(err.Error(), orders.ErrInvalidOrder.Error()+": "))
		}
		d.deps.Metrics.ObserveOrderSubmission("error")
		return nil, fmt.Errorf("order could not be placed")
	}
	d.deps.Metrics.ObserveOrderSubmission("success")
	d.deps.State.Clear(env.Turn.ContactID)
	placed(ctx, d.deps, env.Turn, order)
	return map[string]any{
		"success":   true,
		"reference": order.Reference(),
		"total":     order.Total(),
		"items":     order.Items,
		"status":    order.Status,
	}, nil
}

func (d *ToolDispatcher) getOrderStatus(ctx context.Context, env *ToolEnv, args json.RawMessage) (any, error) {
	var in struct {
		Reference string `json:"reference"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	order, err := d.deps.Orders.Status(ctx, env.Turn.OrgID, env.Turn.ContactID, in.Reference)
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			return map[string]any{"found": false}, nil
		}
		return nil, fmt.Errorf("order lookup unavailable")
	}
	return map[string]any{
		"found":      true,
		"reference":  order.Reference(),
		"status":     order.Status,
		"total":      order.Total(),
		"items":      order.Items,
		"address":    order.Address,
		"created_at": order.CreatedAt.In(env.Turn.location()).Format("2006-01-02 15:04"),
	}, nil
}

func (d *ToolDispatcher) getBankAccounts(ctx context.Context, env *ToolEnv, _ json.RawMessage) (any, error) {
	if d.deps.Payments == nil {
		return map[string]any{"accounts": []any{}}, nil
	}
	accounts, err := d.deps.Payments.List(ctx, env.Turn.OrgID)
	if err != nil {
		return nil, fmt.Errorf("payment details unavailable")
	}
	return map[string]any{"accounts": accounts}, nil
}

func (d *ToolDispatcher) scheduleFollowUp(ctx context.Context, env *ToolEnv, args json.RawMessage) (any, error) {
	var in struct {
		Subject string  `json:"subject"`
		Date    *string `json:"date"`
		Time    *string `json:"time"`
		Summary string  `json:"summary"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if d.deps.FollowUps == nil {
		return nil, fmt.Errorf("scheduling is not available")
	}
	loc := env.Turn.location()
	when, subject, missing := resolveSchedule(scheduleRequest{Date: in.Date, Time: in.Time, Subject: &in.Subject}, loc)
	if len(missing) > 0 {
		return map[string]any{"scheduled": false, "missing": missing}, nil
	}
	if !when.After(d.deps.Now()) {
		return map[string]any{"scheduled": false, "reason": "time is in the past"}, nil
	}
	summary := in.Summary
	if summary == "" {
		summary = truncate(env.Turn.Input, 500)
	}
	f, err := d.deps.FollowUps.Create(ctx, scheduling.FollowUp{
		OrgID:     env.Turn.OrgID,
		ContactID: env.Turn.ContactID,
		Subject:   subject,
		Summary:   summary,
		When:      when,
	})
	if err != nil {
		return nil, fmt.Errorf("follow-up could not be booked")
	}
	d.deps.Events.FollowUpScheduled(ctx, events.FollowUpScheduledV1{
		FollowUpID: f.ID, OrgID: f.OrgID, ContactID: f.ContactID, Subject: f.Subject, When: f.When,
	})
	return map[string]any{"scheduled": true, "when": when.In(loc).Format("Mon, 02 Jan 2006 15:04"), "subject": subject}, nil
}

func sendResponse(_ context.Context, env *ToolEnv, args json.RawMessage) (any, error) {
	var in struct {
		Message string `json:"message"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	msg := strings.TrimSpace(in.Message)
	if msg == "" {
		return nil, fmt.Errorf("%w: message is empty", ErrInvalidArguments)
	}
	env.Response = msg
	return map[string]any{"sent": true}, nil
}

func (d *ToolDispatcher) searchKnowledge(ctx context.Context, env *ToolEnv, args json.RawMessage) (any, error) {
	var in struct {
		Query string `json:"query"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	snippets := d.deps.searchKnowledge(ctx, in.Query, env.Turn.OrgID)
	if len(snippets) == 0 {
		return map[string]any{"found": false, "reply": NoInformationReply}, nil
	}
	facts := make([]string, 0, len(snippets))
	for _, s := range snippets {
		facts = append(facts, strings.TrimSpace(s.Content))
	}
	return map[string]any{"found": true, "facts": facts}, nil
}
