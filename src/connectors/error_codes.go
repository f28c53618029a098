package connectors

import "fmt"

// BinanceErrorCodes maps Binance futures error codes to human-readable messages.
var BinanceErrorCodes = map[int]string{
	-1000: "UNKNOWN",                 // Unknown error while processing the request
	-1001: "DISCONNECTED",            // Internal error; unable to process your request
	-1003: "TOO_MANY_REQUESTS",       // Too many requests, rate limited
	-1007: "TIMEOUT",                 // Timeout waiting for response from backend server
	-1008: "SERVER_BUSY",             // Server is currently overloaded
	-1021: "INVALID_TIMESTAMP",       // Timestamp outside of recvWindow
	-1100: "ILLEGAL_CHARS",           // Illegal characters found in a parameter
	-1102: "MANDATORY_PARAM_EMPTY",   // A mandatory parameter was not sent or was empty
	-1120: "BAD_INTERVAL",            // Invalid kline interval
	-1121: "BAD_SYMBOL",              // Invalid symbol
	-1122: "INVALID_SYMBOL_STATUS",   // Symbol is not trading
	-4141: "SYMBOL_ALREADY_CLOSED",   // Symbol is closed
	-4144: "INVALID_PAIR",            // Invalid pair
	-4164: "MIN_NOTIONAL",            // Order notional below minimum
	-5021: "FOK_ORDER_REJECT",        // Fill-or-kill order rejected
	-5028: "ME_RECVWINDOW_REJECT",    // Matching engine recvWindow reject
	-1015: "TOO_MANY_ORDERS",         // Too many new orders
	-1013: "INVALID_MESSAGE",         // Request rejected by filters
	-2013: "NO_SUCH_ORDER",           // Order does not exist
	-2019: "MARGIN_NOT_SUFFICIEN",    // Margin is insufficient
	-4003: "QUANTITY_LESS_THAN_ZERO", // Quantity less than or equal to zero
}

// GetErrorMsg returns a human-readable message for a given Binance error code.
// If the code is unknown, returns a generic message including the code.
func GetErrorMsg(code int) string {
	if msg, ok := BinanceErrorCodes[code]; ok {
		return msg
	}
	return fmt.Sprintf("UNKNOWN_BINANCE_ERROR_%d", code)
}

// APIError is the error body Binance sends with non-2xx answers.
type APIError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance %s (%d): %s", GetErrorMsg(e.Code), e.Code, e.Msg)
}
