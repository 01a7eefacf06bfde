package domain

import "time"

const DefaultCarrier = "Shopii Express"

type ShippingEvent struct {
	Status    ShippingStatus `json:"status"`
	Location  string         `json:"location,omitempty"`
	Notes     string         `json:"notes,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

type ShippingInfo struct {
	ID               uint64          `json:"id" gorm:"primaryKey;autoIncrement"`
	OrderItemID      uint64          `json:"orderItemId" gorm:"not null;uniqueIndex"`
	SellerID         uint64          `json:"sellerId" gorm:"not null;index"`
	Carrier          string          `json:"carrier" gorm:"size:64"`
	TrackingNumber   string          `json:"trackingNumber" gorm:"size:64;uniqueIndex;not null"`
	Status           ShippingStatus  `json:"status" gorm:"type:enum('pending','processing','shipping','in_transit','out_for_delivery','delivered','failed','returned');default:'pending'"`
	Location         string          `json:"location,omitempty" gorm:"size:255"`
	Notes            string          `json:"notes,omitempty" gorm:"type:text"`
	StatusHistory    []ShippingEvent `json:"statusHistory" gorm:"serializer:json;type:json"`
	EstimatedArrival time.Time       `json:"estimatedArrival"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// Record moves the shipment to status and appends it to the history.
func (s *ShippingInfo) Record(status ShippingStatus, location, notes string, at time.Time) {
	s.Status = status
	if location != "" {
		s.Location = location
	}
	if notes != "" {
		s.Notes = notes
	}
	s.StatusHistory = append(s.StatusHistory, ShippingEvent{
		Status:    status,
		Location:  location,
		Notes:     notes,
		Timestamp: at,
	})
}
