package counseling

// Session correlates the exchanges of one counseling conversation.
// ID stays empty until the server assigns one on the first exchange.
type Session struct {
	ID            string `json:"sessionId,omitempty"`
	ExchangeCount int    `json:"exchangeCount"`
}
