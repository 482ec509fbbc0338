// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// InvoiceStatus represents invoice lifecycle states. The set is open:
// unknown values read from the server are carried through untouched.
type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "DRAFT"
	InvoiceStatusOpen          InvoiceStatus = "OPEN"
	InvoiceStatusPaid          InvoiceStatus = "PAID"
	InvoiceStatusVoid          InvoiceStatus = "VOID"
	InvoiceStatusUncollectible InvoiceStatus = "UNCOLLECTIBLE"
)

// Invoice represents a billable document with a total amount and due date.
// Amounts are minor units (cents).
type Invoice struct {
	ID          snowflake.ID      `json:"id" gorm:"primaryKey"`
	CustomerID  snowflake.ID      `json:"customer_id" gorm:"not null;index"`
	Number      string            `json:"number" gorm:"type:text;not null;uniqueIndex"`
	Status      InvoiceStatus     `json:"status" gorm:"type:text;not null;default:'DRAFT'"`
	TotalAmount int64             `json:"total_amount" gorm:"not null;default:0"`
	Currency    string            `json:"currency" gorm:"type:text;not null"`
	IssuedAt    *time.Time        `json:"issued_at" gorm:""`
	DueAt       *time.Time        `json:"due_at" gorm:""`
	PaidAt      *time.Time        `json:"paid_at" gorm:""`
	Metadata    datatypes.JSONMap `json:"metadata" gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt   time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }
