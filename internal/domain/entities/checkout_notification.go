package entities

// PaymentStatusApproved is the only checkout status that produces a Purchase.
const PaymentStatusApproved = "approved"

// CheckoutNotification is the payment callback sent by the Vega checkout.
// The provider spells the transaction token field "tansaction_token".
type CheckoutNotification struct {
	TansactionToken   string            `json:"tansaction_token"`
	TransactionToken  string            `json:"transaction_token"`
	ExternalCode      string            `json:"external_code,omitempty"`
	TransactionAmount int64             `json:"transaction_amount"`
	FreightAmount     int64             `json:"freight_amount,omitempty"`
	AutomaticDiscount int64             `json:"automatic_discount,omitempty"`
	Products          []CheckoutProduct `json:"products,omitempty"`
	Customer          CheckoutCustomer  `json:"customer"`
	CustomerAddress   map[string]string `json:"customer_address,omitempty"`
	UTMs              *CheckoutUTMs     `json:"utms,omitempty"`
	PaymentStatus     string            `json:"payment_status"`
	PaymentType       string            `json:"payment_type"`
	DateCreated       string            `json:"date_created"`
	DateApproved      string            `json:"date_approved,omitempty"`
	DateRefunded      string            `json:"date_refunded,omitempty"`
}

// CheckoutProduct is a line item of a checkout.
type CheckoutProduct struct {
	Title          string `json:"title"`
	Code           string `json:"code"`
	Amount         int64  `json:"amount"`
	Quantity       int    `json:"quantity"`
	OriginalAmount int64  `json:"original_amount"`
}

// CheckoutCustomer is the buyer record.
type CheckoutCustomer struct {
	FullName             string `json:"full_name"`
	Email                string `json:"email"`
	Cellphone            string `json:"cellphone,omitempty"`
	IdentificationNumber string `json:"identification_number,omitempty"`
}

// CheckoutUTMs echoes the attribution of the checkout link. Src carries
// the quiz session id.
type CheckoutUTMs struct {
	Src         string `json:"src,omitempty"`
	UTMSource   string `json:"utm_source,omitempty"`
	UTMMedium   string `json:"utm_medium,omitempty"`
	UTMCampaign string `json:"utm_campaign,omitempty"`
	UTMContent  string `json:"utm_content,omitempty"`
	UTMTerm     string `json:"utm_term,omitempty"`
}

// Token returns the transaction token under either spelling.
func (n *CheckoutNotification) Token() string {
	if n.TansactionToken != "" {
		return n.TansactionToken
	}
	return n.TransactionToken
}

// SourceSessionID returns utms.src, or "" when absent.
func (n *CheckoutNotification) SourceSessionID() string {
	if n.UTMs == nil {
		return ""
	}
	return n.UTMs.Src
}

// AmountMajor converts the minor-unit amount to major units.
func (n *CheckoutNotification) AmountMajor() float64 {
	return float64(n.TransactionAmount) / 100
}
