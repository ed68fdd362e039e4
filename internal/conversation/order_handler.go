package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/storefront-ai/internal/catalog"
	"github.com/wolfman30/storefront-ai/internal/events"
	"github.com/wolfman30/storefront-ai/internal/notify"
	"github.com/wolfman30/storefront-ai/internal/orders"
)

// OrderHandler fills product, quantity and address over several turns and
// submits the order once all three are known.
type OrderHandler struct {
	deps *Deps
}

func NewOrderHandler(deps *Deps) *OrderHandler {
	if deps == nil || deps.Catalog == nil || deps.Orders == nil {
		panic("conversation: order handler requires catalog and ledger")
	}
	deps.normalize()
	return &OrderHandler{deps: deps}
}

// Handle must run while the caller holds the contact's StateStore slot.
func (h *OrderHandler) Handle(ctx context.Context, in TurnInput) (string, error) {
	ctx, span := conversationTracer.Start(ctx, "conversation.order.handle")
	defer span.End()

	slots := mergeSlots(h.deps.State.Get(in.ContactID), in.Extracted)

	if slots.ProductID == "" && slots.RawProduct != "" {
		products, err := h.deps.Catalog.Search(ctx, in.OrgID, slots.RawProduct, "")
		if err != nil {
			span.RecordError(err)
			h.deps.State.Put(in.ContactID, slots)
			return "", fmt.Errorf("conversation: order: catalog search: %w", err)
		}
		if len(products) == 0 {
			h.deps.State.Put(in.ContactID, slots)
			return fmt.Sprintf("I couldn't find %q in our catalog. Could you tell me the product name as it appears in our list?", slots.RawProduct), nil
		}
		p := products[0]
		slots.ProductID = p.ID
		slots.ProductName = p.Name
		slots.UnitCents = p.PriceCents
		slots.Currency = p.Currency
	}

	if !slots.Complete() {
		h.deps.State.Put(in.ContactID, slots)
		return clarifyingQuestion(slots), nil
	}
	return h.submit(ctx, in, slots)
}

func (h *OrderHandler) submit(ctx context.Context, in TurnInput, slots OrderSlots) (string, error) {
	order, err := h.deps.Orders.Submit(ctx, orders.SubmitRequest{
		OrgID:     in.OrgID,
		ContactID: in.ContactID,
		Items:     []orders.ItemRequest{{ProductID: slots.ProductID, Quantity: slots.Quantity}},
		Address:   slots.Address,
	})
	if err != nil {
		// Keep everything collected so the customer only fixes what failed.
		h.deps.State.Put(in.ContactID, slots)
		var rej *orders.RejectionError
		if errors.As(err, &rej) {
			h.deps.Metrics.ObserveOrderSubmission("rejected")
			h.deps.Events.OrderRejected(ctx, in.ContactID, in.OrgID, rej.Reason)
			return rejectionReply(rej, slots), nil
		}
		h.deps.Metrics.ObserveOrderSubmission("error")
		h.deps.Logger.Error("order submission failed", "error", err, "contact_id", in.ContactID, "org_id", in.OrgID)
		return "I couldn't place your order just now. Your details are saved, so please try again in a moment.", nil
	}

	h.deps.State.Clear(in.ContactID)
	h.deps.Metrics.ObserveOrderSubmission("success")
	placed(ctx, h.deps, in, order)
	return fmt.Sprintf("Your order #%s is confirmed: %d x %s, total %s. We'll deliver to %s.",
		order.Reference(), slots.Quantity, slots.ProductName, order.Total(), slots.Address), nil
}

// placed records a confirmed order and notifies operators, best-effort.
func placed(ctx context.Context, deps *Deps, in TurnInput, order *orders.Order) {
	deps.Events.OrderSubmitted(ctx, events.OrderPlacedV1{
		OrderID:    order.ID,
		Reference:  order.Reference(),
		OrgID:      in.OrgID,
		ContactID:  in.ContactID,
		TotalCents: order.TotalCents,
		Currency:   order.Currency,
		PlacedAt:   order.CreatedAt,
	})
	if deps.Notifier == nil || in.Agent == nil || len(in.Agent.NotifyEmails) == 0 {
		return
	}
	notice := notify.OrderNotice{
		Recipients: in.Agent.NotifyEmails,
		StoreName:  in.Agent.Name,
		Order:      order,
	}
	if in.Contact != nil {
		notice.CustomerName = in.Contact.DisplayName
		notice.CustomerAddr = in.Contact.Address
	}
	if err := deps.Notifier.NotifyOrderPlaced(ctx, notice); err != nil {
		deps.Logger.Warn("order notification failed", "error", err, "org_id", in.OrgID, "reference", order.Reference())
	}
}

// mergeSlots overwrites slots with every non-nil extracted value. A new
// product name discards the previously resolved product.
func mergeSlots(slots OrderSlots, ex ExtractedSlots) OrderSlots {
	if ex.Product != nil {
		name := strings.TrimSpace(*ex.Product)
		if name != "" && !strings.EqualFold(name, slots.RawProduct) && !strings.EqualFold(name, slots.ProductName) {
			slots.RawProduct = name
			slots.ProductID = ""
			slots.ProductName = ""
			slots.UnitCents = 0
			slots.Currency = ""
		}
	}
	if ex.Quantity != nil && *ex.Quantity > 0 {
		slots.Quantity = *ex.Quantity
	}
	if ex.Address != nil && strings.TrimSpace(*ex.Address) != "" {
		slots.Address = strings.TrimSpace(*ex.Address)
	}
	return slots
}

var slotQuestions = map[string]string{
	SlotProduct:  "which product you'd like",
	SlotQuantity: "how many you need",
	SlotAddress:  "the delivery address",
}

func clarifyingQuestion(slots OrderSlots) string {
	missing := slots.Missing()
	asks := make([]string, 0, len(missing))
	for _, m := range missing {
		asks = append(asks, slotQuestions[m])
	}
	prefix := ""
	if slots.ProductName != "" {
		prefix = fmt.Sprintf("Great, %s (%s each). ", slots.ProductName, formatUnitPrice(slots))
	}
	return prefix + "To place your order, please tell me " + joinNatural(asks) + "."
}

func rejectionReply(rej *orders.RejectionError, slots OrderSlots) string {
	name := rej.ProductName
	if name == "" {
		name = slots.ProductName
	}
	if errors.Is(rej, orders.ErrInsufficientStock) && rej.CurrentStock != nil {
		stock := *rej.CurrentStock
		requested := rej.Requested
		if requested == 0 {
			requested = slots.Quantity
		}
		if stock <= 0 {
			return fmt.Sprintf("Sorry, %s is out of stock right now, so I can't place an order for %d. Would you like something else?", name, requested)
		}
		return fmt.Sprintf("Sorry, we only have %d of %s in stock, %d short of the %d you asked for. Would you like to order %d instead?",
			stock, name, requested-stock, requested, stock)
	}
	return fmt.Sprintf("Sorry, I couldn't place the order for %s: %s. Would you like to change anything?", name, strings.ToLower(rej.Reason))
}

func formatUnitPrice(s OrderSlots) string {
	if s.Currency == "" && s.UnitCents == 0 {
		return "price on request"
	}
	return catalog.FormatPrice(s.UnitCents, s.Currency)
}
