package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"marketplace-orders/internal/domain"
	"marketplace-orders/internal/infra"
	"marketplace-orders/internal/repository"
)

const (
	chatHistoryOrders = 10
	chatFallback      = "Sorry, the assistant is unavailable right now. Please try again in a moment."
)

type ChatResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	TransactionID string `json:"transactionId,omitempty"`
	ResponseTime  int64  `json:"responseTime"`
}

// ChatService answers buyer questions about their own orders.
type ChatService struct {
	repos repository.Set
	model infra.ChatModel
}

func NewChatService(repos repository.Set, model infra.ChatModel) *ChatService {
	return &ChatService{repos: repos, model: model}
}

func (s *ChatService) Chat(ctx context.Context, buyerID uint64, message string) (*ChatResponse, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, domain.Errorf(domain.KindValidation, "message is required")
	}

	history, err := s.orderContext(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	prompt := history + "\nCustomer question: " + message

	start := time.Now()
	reply, err := s.model.Generate(ctx, prompt)
	elapsed := time.Since(start).Milliseconds()

	resp := &ChatResponse{ResponseTime: elapsed}
	if reply != nil {
		resp.TransactionID = reply.TransactionID
	}
	if err != nil {
		log.Printf("[chat] buyer %d: model failed (tx %s): %v", buyerID, resp.TransactionID, err)
		resp.Message = chatFallback
		return resp, nil
	}
	resp.Success = true
	resp.Message = reply.Text
	return resp, nil
}

// orderContext renders the buyer's most recent orders as plain text for the
// model.
func (s *ChatService) orderContext(ctx context.Context, buyerID uint64) (string, error) {
	orders, _, err := s.repos.Orders.ListByBuyer(ctx, buyerID, repository.Page{Page: 1, Limit: chatHistoryOrders})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("You are a shopping assistant for an online marketplace. ")
	b.WriteString("Answer using only the order information below.\n")
	if len(orders) == 0 {
		b.WriteString("The customer has no orders yet.\n")
		return b.String(), nil
	}

	for _, o := range orders {
		fmt.Fprintf(&b, "Order #%d placed %s: status %s, total %s\n",
			o.ID, o.CreatedAt.Format("2006-01-02"), o.Status, o.TotalPrice.StringFixed(2))

		items, err := s.repos.Orders.FindItems(ctx, o.ID)
		if err != nil {
			return "", err
		}
		ids := make([]uint64, 0, len(items))
		for _, it := range items {
			ids = append(ids, it.ID)
		}
		tracking := make(map[uint64]domain.ShippingInfo)
		if len(ids) > 0 {
			infos, err := s.repos.Shipping.FindByOrderItemIDs(ctx, ids)
			if err != nil {
				return "", err
			}
			for _, info := range infos {
				tracking[info.OrderItemID] = info
			}
		}
		for _, it := range items {
			fmt.Fprintf(&b, "  - %s x%d (%s)", it.ProductName, it.Quantity, it.Status)
			if info, ok := tracking[it.ID]; ok {
				fmt.Fprintf(&b, ", shipped by %s, tracking %s, %s", info.Carrier, info.TrackingNumber, info.Status)
			}
			b.WriteString("\n")
		}

		p, err := s.repos.Payments.FindByOrderID(ctx, o.ID)
		if err != nil {
			return "", err
		}
		if p != nil {
			fmt.Fprintf(&b, "  payment: %s, %s\n", p.Method, p.Status)
		}
	}
	return b.String(), nil
}
