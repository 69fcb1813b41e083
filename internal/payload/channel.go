package payload

import (
	"fmt"
	"time"

	"github.com/bluebricks/rba-harness/internal/util/random"
)

// NotApplicable fills channel fields that do not apply to a payment mode.
const NotApplicable = "Not Applicable"

// Payment modes as sent by the operator.
const (
	ModeBankTransfer = "bank_transfer"
	ModeUPI          = "upi"
	ModeCreditCard   = "credit_card"
	ModeDebitCard    = "debit_card"
	ModeATM          = "atm"
)

type bank struct {
	name string
	code string
}

var banks = []bank{
	{"State Bank of India", "SBIN"},
	{"HDFC Bank", "HDFC"},
	{"ICICI Bank", "ICIC"},
	{"Axis Bank", "UTIB"},
	{"Punjab National Bank", "PNBN"},
	{"Bank of Baroda", "BARB"},
	{"Canara Bank", "CNRB"},
	{"Union Bank of India", "UBIN"},
	{"Kotak Mahindra Bank", "KKBK"},
	{"Yes Bank", "YESB"},
	{"IDFC FIRST Bank", "IDFB"},
}

var (
	upiUsers        = []string{"user", "pay", "personal", "business", "shop", "store"}
	upiDomains      = []string{"okicici", "oksbi", "okhdfc", "okhdfcbank", "okaxis"}
	dispenserStates = []string{"OK", "Jam", "Empty"}
)

// ChannelFields are the payment channel attributes of a transaction.
type ChannelFields struct {
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
}

// EmptyChannelFields returns a value with every field NotApplicable.
func EmptyChannelFields() ChannelFields {
	return ChannelFields{
		RecipientAccountNo: NotApplicable, RecipientBankName: NotApplicable, RecipientIFSCCode: NotApplicable,
		BankName: NotApplicable, AccountNo: NotApplicable, IFSCCode: NotApplicable,
		RecipientUPIID: NotApplicable, SenderUPIID: NotApplicable,
		CreditCardNo: NotApplicable, CreditCardExpiry: NotApplicable, CreditCardCVV: NotApplicable,
		DebitCardNo: NotApplicable, DebitCardExpiry: NotApplicable, DebitCardCVV: NotApplicable,
		BranchCode: NotApplicable, NumberOfPinTries: NotApplicable, ATMID: NotApplicable,
		CashDispenserStatus: NotApplicable,
	}
}

// WithDefaults replaces blank fields with NotApplicable.
func (c ChannelFields) WithDefaults() ChannelFields {
	for _, f := range []*string{
		&c.RecipientAccountNo, &c.RecipientBankName, &c.RecipientIFSCCode,
		&c.BankName, &c.AccountNo, &c.IFSCCode, &c.RecipientUPIID, &c.SenderUPIID,
		&c.CreditCardNo, &c.CreditCardExpiry, &c.CreditCardCVV,
		&c.DebitCardNo, &c.DebitCardExpiry, &c.DebitCardCVV,
		&c.BranchCode, &c.NumberOfPinTries, &c.ATMID, &c.CashDispenserStatus,
	} {
		if *f == "" {
			*f = NotApplicable
		}
	}
	return c
}

// ChannelRandomizer fabricates Indian payment channel details.
type ChannelRandomizer struct {
	rng *random.Rand
	now func() time.Time
}

func NewChannelRandomizer(rng *random.Rand, now func() time.Time) *ChannelRandomizer {
	if rng == nil {
		rng = random.New()
	}
	if now == nil {
		now = time.Now
	}
	return &ChannelRandomizer{rng: rng, now: now}
}

// Generate fills the fields relevant to mode. Unknown modes get all NotApplicable.
func (r *ChannelRandomizer) Generate(mode string) ChannelFields {
	c := EmptyChannelFields()
	switch mode {
	case ModeBankTransfer:
		c.RecipientAccountNo = r.rng.Digits(12)
		c.RecipientBankName = r.bankName()
		c.BankName = r.bankName()
		c.AccountNo = r.rng.Digits(12)
		c.RecipientIFSCCode = r.IFSC(c.RecipientBankName)
		c.IFSCCode = r.IFSC(c.BankName)
	case ModeUPI:
		c.RecipientUPIID = r.upiID()
		c.SenderUPIID = r.upiID()
	case ModeCreditCard:
		c.CreditCardNo = r.rng.Digits(16)
		c.CreditCardExpiry = r.expiry()
		c.CreditCardCVV = r.rng.Digits(3)
	case ModeDebitCard:
		c.DebitCardNo = r.rng.Digits(16)
		c.DebitCardExpiry = r.expiry()
		c.DebitCardCVV = r.rng.Digits(3)
	case ModeATM:
		c.BankName = r.bankName()
		c.IFSCCode = r.IFSC(c.BankName)
		c.AccountNo = r.rng.Digits(12)
		c.DebitCardNo = r.rng.Digits(16)
		c.DebitCardExpiry = r.expiry()
		c.DebitCardCVV = r.rng.Digits(3)
		c.BranchCode = r.rng.Digits(4)
		c.NumberOfPinTries = fmt.Sprint(r.rng.Between(1, 3))
		c.ATMID = "ATM" + r.rng.Digits(5)
		c.CashDispenserStatus = random.Pick(r.rng, dispenserStates)
	}
	return c
}

// IFSC builds "<bank code>0<6 digits>"; unknown banks use HDFC.
func (r *ChannelRandomizer) IFSC(bankName string) string {
	code := "HDFC"
	for _, b := range banks {
		if b.name == bankName {
			code = b.code
			break
		}
	}
	return code + "0" + r.rng.Digits(6)
}

func (r *ChannelRandomizer) bankName() string {
	return random.Pick(r.rng, banks).name
}

func (r *ChannelRandomizer) upiID() string {
	return random.Pick(r.rng, upiUsers) + r.rng.Digits(4) + "@" + random.Pick(r.rng, upiDomains)
}

// expiry is MM/YY within the next five years.
func (r *ChannelRandomizer) expiry() string {
	month := r.rng.Between(1, 12)
	year := r.now().Year() + r.rng.IntN(5)
	return fmt.Sprintf("%02d/%02d", month, year%100)
}
