package notify

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/wolfman30/storefront-ai/internal/catalog"
	"github.com/wolfman30/storefront-ai/internal/orders"
	"github.com/wolfman30/storefront-ai/pkg/logging"
)

const categoryOrderPlaced = "order-placed"

// OrderNotice carries what operators need to fulfil a new order.
type OrderNotice struct {
	Recipients   []string
	StoreName    string
	CustomerName string
	CustomerAddr string
	Order        *orders.Order
}

// OrderNotifier emails operators when a customer places an order.
type OrderNotifier struct {
	email  EmailSender
	logger *logging.Logger
}

func NewOrderNotifier(email EmailSender, logger *logging.Logger) *OrderNotifier {
	if email == nil {
		panic("notify: email sender cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &OrderNotifier{email: email, logger: logger}
}

// NotifyOrderPlaced sends one email per recipient and joins any failures.
func (n *OrderNotifier) NotifyOrderPlaced(ctx context.Context, notice OrderNotice) error {
	if notice.Order == nil {
		return fmt.Errorf("notify: order required")
	}
	if len(notice.Recipients) == 0 {
		n.logger.Debug("notify: no order recipients configured", "org_id", notice.Order.OrgID)
		return nil
	}

	customer := strings.TrimSpace(notice.CustomerName)
	if customer == "" {
		customer = "A customer"
	}
	subject := fmt.Sprintf("New order %s - %s", notice.Order.Reference(), customer)
	body := formatOrderBody(notice, customer)

	tags := map[string]string{"org_id": notice.Order.OrgID, "order_ref": notice.Order.Reference()}

	var errs []error
	for _, to := range notice.Recipients {
		to = strings.TrimSpace(to)
		if to == "" {
			continue
		}
		if _, err := mail.ParseAddress(to); err != nil {
			errs = append(errs, fmt.Errorf("notify: invalid recipient %q: %w", to, err))
			continue
		}
		msg := EmailMessage{To: to, Subject: subject, Body: body, Category: categoryOrderPlaced, Tags: tags}
		if err := n.email.Send(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("notify: order email to %s: %w", to, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	n.logger.Info("order notification sent", "org_id", notice.Order.OrgID, "reference", notice.Order.Reference(), "recipients", len(notice.Recipients))
	return nil
}

func formatOrderBody(notice OrderNotice, customer string) string {
	o := notice.Order
	var b strings.Builder
	if notice.StoreName != "" {
		fmt.Fprintf(&b, "%s received a new order.\n\n", notice.StoreName)
	}
	fmt.Fprintf(&b, "Reference: %s\n", o.Reference())
	fmt.Fprintf(&b, "Customer: %s\n", customer)
	if notice.CustomerAddr != "" {
		fmt.Fprintf(&b, "Contact: %s\n", notice.CustomerAddr)
	}
	fmt.Fprintf(&b, "Delivery address: %s\n\nItems:\n", o.Address)
	for _, item := range o.Items {
		fmt.Fprintf(&b, "- %d x %s (%s each)\n", item.Quantity, item.Name, catalog.FormatPrice(item.UnitCents, o.Currency))
	}
	fmt.Fprintf(&b, "\nTotal: %s\n", o.Total())
	return b.String()
}
