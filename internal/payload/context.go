package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Num is a number that also accepts numeric strings, as form inputs send
// them. Blank strings and null decode to zero.
type Num float64

func (n *Num) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*n = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*n = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid number %q", s)
		}
		*n = Num(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*n = Num(f)
	return nil
}

// Location is shared by login and transaction contexts.
type Location struct {
	City           string `json:"city"`
	Country        string `json:"country"`
	TimeZone       string `json:"time_zone"`
	VPNCheck       Num    `json:"vpn_check"`
	Timestamp      string `json:"timestamp"`
	TimestampStart string `json:"timestamp_start"`
	TimestampEnd   string `json:"timestamp_end"`
}

// LoginContext is the operator supplied part of a login payload. The min/max
// and window fields only drive batch randomisation.
type LoginContext struct {
	Location
	TimeTaken    Num `json:"time_taken_to_complete_login"`
	TimeTakenMin Num `json:"time_taken_to_complete_login_min"`
	TimeTakenMax Num `json:"time_taken_to_complete_login_max"`
}

// TransactionContext is the operator supplied part of a transaction payload.
type TransactionContext struct {
	Location
	TimeTaken    Num    `json:"time_taken_to_complete_transaction"`
	TimeTakenMin Num    `json:"time_taken_to_complete_transaction_min"`
	TimeTakenMax Num    `json:"time_taken_to_complete_transaction_max"`
	Amount       Num    `json:"transaction_amount"`
	AmountMin    Num    `json:"transaction_amount_min"`
	AmountMax    Num    `json:"transaction_amount_max"`
	Category     string `json:"transaction_category"`
	Currency     string `json:"transaction_currency"`
	Type         string `json:"transaction_type"`
}
