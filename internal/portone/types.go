package portone

// Amount follows the provider's nested amount object. Total is in the
// currency's smallest unit (KRW has no fraction).
type Amount struct {
	Total int64 `json:"total"`
}

// ChargeRequest is the body of an immediate billing-key payment.
type ChargeRequest struct {
	StoreID    string `json:"storeId,omitempty"`
	BillingKey string `json:"billingKey"`
	ChannelKey string `json:"channelKey,omitempty"`
	OrderName  string `json:"orderName"`
	Amount     Amount `json:"amount"`
	Currency   string `json:"currency"`
}

// ChargeResponse carries the fields the orchestrator reads from a successful
// charge. Raw keeps the full provider body for the audit trail.
type ChargeResponse struct {
	Payment ChargedPayment `json:"payment"`
	Raw     []byte         `json:"-"`
}

type ChargedPayment struct {
	PaidAt  string `json:"paidAt"`
	PgTxID  string `json:"pgTxId"`
	Receipt string `json:"receiptUrl"`
}

// SchedulePayment is the payment template embedded in a schedule request.
type SchedulePayment struct {
	StoreID    string `json:"storeId,omitempty"`
	BillingKey string `json:"billingKey"`
	ChannelKey string `json:"channelKey,omitempty"`
	OrderName  string `json:"orderName"`
	Amount     Amount `json:"amount"`
	Currency   string `json:"currency"`
}

// CreateScheduleRequest registers a deferred charge. TimeToPay is RFC 3339
// with an explicit zone offset.
type CreateScheduleRequest struct {
	Payment   SchedulePayment `json:"payment"`
	TimeToPay string          `json:"timeToPay"`
}

type CreateScheduleResponse struct {
	Schedule ScheduleRef `json:"schedule"`
}

type ScheduleRef struct {
	ID string `json:"id"`
}

// CancelSchedulesRequest revokes schedules either by explicit ids or all
// schedules tied to a billing key. Exactly one of the two should be set.
type CancelSchedulesRequest struct {
	StoreID     string   `json:"storeId,omitempty"`
	ScheduleIDs []string `json:"scheduleIds,omitempty"`
	BillingKey  string   `json:"billingKey,omitempty"`
}

type CancelSchedulesResponse struct {
	RevokedScheduleIDs []string `json:"revokedScheduleIds"`
}

// Revoked reports whether the provider confirmed revocation of the given id.
func (r *CancelSchedulesResponse) Revoked(scheduleID string) bool {
	for _, id := range r.RevokedScheduleIDs {
		if id == scheduleID {
			return true
		}
	}
	return false
}

// Provider-side schedule states.
const (
	ScheduleStatusScheduled = "SCHEDULED"
	ScheduleStatusPending   = "PENDING"
	ScheduleStatusSucceeded = "SUCCEEDED"
	ScheduleStatusFailed    = "FAILED"
	ScheduleStatusRevoked   = "REVOKED"
)

type GetScheduleResponse struct {
	ID         string           `json:"id"`
	Status     string           `json:"status"`
	BillingKey string           `json:"billingKey"`
	TimeToPay  string           `json:"timeToPay"`
	Payments   []SchedulePayout `json:"payments"`
	Raw        []byte           `json:"-"`
}

// SchedulePayout is a payment realized from an executed schedule.
type SchedulePayout struct {
	ID string `json:"id"`
}

// RealizedPaymentID returns the id of the first realized payment, if any.
func (r *GetScheduleResponse) RealizedPaymentID() string {
	if len(r.Payments) == 0 {
		return ""
	}
	return r.Payments[0].ID
}

// Billing-key method discriminators reported by the provider.
const (
	MethodTypeCard    = "BillingKeyPaymentMethodCard"
	MethodTypeEasyPay = "BillingKeyPaymentMethodEasyPay"
)

type BillingKeyInfo struct {
	BillingKey string             `json:"billingKey"`
	Methods    []BillingKeyMethod `json:"methods"`
}

type BillingKeyMethod struct {
	Type    string       `json:"type"`
	Card    *CardInfo    `json:"card"`
	EasyPay *EasyPayInfo `json:"easyPay"`
}

type CardInfo struct {
	Name   string `json:"name"`
	Number string `json:"number"`
}

type EasyPayInfo struct {
	Provider string `json:"provider"`
}

type DeleteBillingKeyResponse struct {
	DeletedAt string `json:"deletedAt"`
}
