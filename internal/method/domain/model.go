package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Method classifications derived from gateway key metadata.
const (
	MethodTypeCard    = "card"
	MethodTypeEasyPay = "easyPay"
)

// BillingMethod is a stored payment instrument. CardName and CardNumber are
// always the gateway-reported values; DisplayName is the owner's own label.
type BillingMethod struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	OwnerID     snowflake.ID `json:"owner_id" gorm:"not null;index"`
	BillingKey  string       `json:"-" gorm:"type:text;not null;uniqueIndex"`
	MethodType  string       `json:"method_type" gorm:"type:text;not null"`
	Provider    string       `json:"provider" gorm:"type:text"`
	CardName    string       `json:"card_name" gorm:"type:text"`
	CardNumber  string       `json:"card_number" gorm:"type:text"`
	DisplayName string       `json:"display_name" gorm:"type:text"`
	Fingerprint string       `json:"-" gorm:"type:text;index"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time    `json:"updated_at" gorm:"not null"`
}

func (BillingMethod) TableName() string { return "billing_methods" }

// CardFingerprint identifies a card by issuer plus masked number. Masked
// numbers are only comparable within the same issuer, and not at all for
// easy-pay channels, so only card methods carry a fingerprint.
func CardFingerprint(cardName, cardNumber string) string {
	sum := sha256.Sum256([]byte(cardName + "|" + cardNumber))
	return hex.EncodeToString(sum[:])
}
