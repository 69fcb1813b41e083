package payload

import (
	"github.com/bluebricks/rba-harness/internal/models"
)

const defaultAmount = 100

// TransactionDetails is the transactionDetails object of a transaction payload.
type TransactionDetails struct {
	TransactionID        string  `json:"transactionId"`
	TransactionAmount    float64 `json:"transaction_amount"`
	TransactionCategory  string  `json:"transaction_category"`
	TransactionCurrency  string  `json:"transaction_currency"`
	TransactionFrequency string  `json:"transaction_frequency"`
	TransactionType      string  `json:"transaction_type,omitempty"`
	PaymentMode          string  `json:"payment_mode,omitempty"`

	RecipientAccountNo  string `json:"recipient_account_no"`
	RecipientBankName   string `json:"recipient_bank_name"`
	RecipientIFSCCode   string `json:"recipient_ifsc_code"`
	BankName            string `json:"bank_name"`
	AccountNo           string `json:"account_no"`
	IFSCCode            string `json:"ifsc_code"`
	RecipientUPIID      string `json:"recipient_upi_id"`
	SenderUPIID         string `json:"sender_upi_id"`
	CreditCardNo        string `json:"credit_card_no"`
	CreditCardExpiry    string `json:"credit_card_expiry"`
	CreditCardCVV       string `json:"credit_card_cvv"`
	DebitCardNo         string `json:"debit_card_no"`
	DebitCardExpiry     string `json:"debit_card_expiry"`
	DebitCardCVV        string `json:"debit_card_cvv"`
	BranchCode          string `json:"branch_code"`
	NumberOfPinTries    string `json:"number_of_pin_tries"`
	ATMID               string `json:"atm_id"`
	CashDispenserStatus string `json:"cash_dispenser_status"`

	TimeTaken *float64 `json:"time_taken_to_complete_transaction,omitempty"`
}

// typeAndMode maps the operator's payment mode to the API's
// transaction_type and payment_mode pair. atm passes through unchanged.
var typeAndMode = map[string][2]string{
	ModeBankTransfer: {"net_banking", "netbanking"},
	ModeCreditCard:   {"card", "creditcard"},
	ModeDebitCard:    {"card", "debitcard"},
	ModeUPI:          {"upi", "upi"},
}

// Transaction builds a transaction payload. Channel fields that do not apply
// to ctx.Type are sent as NotApplicable regardless of ch.
func (b *Builder) Transaction(device models.DeviceProfile, ctx TransactionContext, ch ChannelFields, userID string) TransactionPayload {
	mode := ctx.Type
	amount := float64(ctx.Amount)
	if amount == 0 {
		amount = defaultAmount
	}

	pick := func(applies bool, v string) string {
		if applies {
			return v
		}
		return NotApplicable
	}
	isBank := mode == ModeBankTransfer
	isATM := mode == ModeATM
	isDebit := mode == ModeDebitCard || isATM

	td := TransactionDetails{
		TransactionID:        b.TransactionID(),
		TransactionAmount:    amount,
		TransactionCategory:  orDefault(ctx.Category, "Online"),
		TransactionCurrency:  orDefault(ctx.Currency, "INR"),
		TransactionFrequency: "one-time",
		TransactionType:      mode,
		PaymentMode:          mode,

		RecipientAccountNo:  pick(isBank, ch.RecipientAccountNo),
		RecipientBankName:   pick(isBank, ch.RecipientBankName),
		RecipientIFSCCode:   pick(isBank, ch.RecipientIFSCCode),
		BankName:            pick(isBank || isATM, ch.BankName),
		AccountNo:           pick(isBank || isATM, ch.AccountNo),
		IFSCCode:            pick(isBank || isATM, ch.IFSCCode),
		RecipientUPIID:      pick(mode == ModeUPI, ch.RecipientUPIID),
		SenderUPIID:         pick(mode == ModeUPI, ch.SenderUPIID),
		CreditCardNo:        pick(mode == ModeCreditCard, ch.CreditCardNo),
		CreditCardExpiry:    pick(mode == ModeCreditCard, ch.CreditCardExpiry),
		CreditCardCVV:       pick(mode == ModeCreditCard, ch.CreditCardCVV),
		DebitCardNo:         pick(isDebit, ch.DebitCardNo),
		DebitCardExpiry:     pick(isDebit, ch.DebitCardExpiry),
		DebitCardCVV:        pick(isDebit, ch.DebitCardCVV),
		BranchCode:          pick(isATM, ch.BranchCode),
		NumberOfPinTries:    pick(isATM, ch.NumberOfPinTries),
		ATMID:               pick(isATM, ch.ATMID),
		CashDispenserStatus: pick(isATM, ch.CashDispenserStatus),
	}
	if tm, ok := typeAndMode[mode]; ok {
		td.TransactionType, td.PaymentMode = tm[0], tm[1]
	}
	if !isATM {
		timeTaken := float64(ctx.TimeTaken)
		if timeTaken == 0 {
			timeTaken = defaultTimeTaken
		}
		td.TimeTaken = &timeTaken
	}

	return TransactionPayload{
		DeviceDetails:      b.deviceDetails(device, ctx.Location),
		UserDetails:        UserDetails{UserID: orDefault(userID, "UnknownUser")},
		TransactionDetails: td,
		Secret:             b.secret,
	}
}
