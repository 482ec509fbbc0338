// Package domain contains persistence models for payments.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Payment methods are free-form tags; these are the common ones.
const (
	MethodCard         = "card"
	MethodBankTransfer = "bank_transfer"
	MethodCash         = "cash"
	MethodCheck        = "check"
	MethodOther        = "other"
)

// Payment is a monetary settlement applied against one invoice.
// Amount is minor units and always positive.
type Payment struct {
	ID        snowflake.ID      `json:"id" gorm:"primaryKey"`
	InvoiceID snowflake.ID      `json:"invoice_id" gorm:"not null;index"`
	Amount    int64             `json:"amount" gorm:"not null"`
	Currency  string            `json:"currency" gorm:"type:text;not null"`
	Method    string            `json:"method" gorm:"type:text;not null;default:'other'"`
	PaidAt    time.Time         `json:"paid_at" gorm:"not null"`
	Metadata  datatypes.JSONMap `json:"metadata" gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }
