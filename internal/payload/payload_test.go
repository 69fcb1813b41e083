package payload

import (
	"encoding/json"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluebricks/rba-harness/internal/models"
	"github.com/bluebricks/rba-harness/internal/util/random"
)

var fixedNow = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local) }

func newTestBuilder(seed uint64) *Builder {
	return NewBuilder(random.NewSeeded(seed, seed+1), fixedNow, "s3cr3t")
}

func androidDevice() models.DeviceProfile {
	return models.DeviceProfile{
		DeviceID: "d1", DeviceFingerprint: "f1", DeviceType: models.DeviceAndroid,
		OperatingSystem: "Android 14", IPAddress: "10.0.0.1", OSRelease: 14,
		MobileAttributes: &models.MobileAttributes{
			DeviceModel: "Pixel 8", HardwareBiometricSupport: "1", IsEmulator: "0", OSSDK: 34, BatteryLevel: 80,
		},
		AndroidAttributes: &models.AndroidAttributes{IsRooted: "1", SecurityADBEnabled: "0", SecurityDevMode: "1"},
	}
}

func toMap(t *testing.T, v any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func TestCoordinates(t *testing.T) {
	lat, lon := Coordinates("  mumbai ")
	assert.Equal(t, 19.0760, lat)
	assert.Equal(t, 72.8777, lon)

	lat, lon = Coordinates("London")
	assert.Equal(t, 51.5074, lat)
	assert.Equal(t, -0.1278, lon)

	lat, lon = Coordinates("Atlantis")
	assert.Zero(t, lat)
	assert.Zero(t, lon)

	assert.Len(t, AllCities(), 54)
	assert.Equal(t, []string{"India", "Japan", "USA", "UK", "Australia", "Canada"}, AllCountries())
}

func TestLoginPayloadAndroid(t *testing.T) {
	p := newTestBuilder(1).Login(androidDevice(), LoginContext{
		Location: Location{City: "Tokyo", Country: "Japan", VPNCheck: 1, TimeZone: "Asia/Tokyo"},
	}, "u1")

	m := toMap(t, p)
	assert.Equal(t, "s3cr3t", m["secret"])
	assert.Equal(t, map[string]any{"user_id": "u1"}, m["userDetails"])

	d := m["deviceDetails"].(map[string]any)
	assert.Equal(t, 35.6895, d["latitude"])
	assert.Equal(t, "Tokyo", d["city"])
	assert.Equal(t, "en-US", d["device_language"])
	assert.Equal(t, float64(5), d["time_taken_to_complete_login"])
	assert.Equal(t, "2025-06-01 12:00:00", d["timestamp"])
	assert.Equal(t, float64(1), d["vpn_check"])
	assert.Equal(t, float64(1), d["is_rooted"])
	assert.Equal(t, float64(1), d["hardware_biometric_support"])
	assert.Equal(t, "Pixel 8", d["device_model"])
	assert.NotContains(t, d, "browser_name_and_version")
	assert.NotContains(t, d, "is_jailbroken")
}

func TestLoginPayloadWebDefaults(t *testing.T) {
	web := models.DeviceProfile{DeviceType: models.DeviceWeb, BrowserNameAndVersion: "Firefox 120"}
	d := toMap(t, newTestBuilder(2).Login(web, LoginContext{}, "u2"))["deviceDetails"].(map[string]any)

	assert.Equal(t, "Unknown", d["city"])
	assert.Equal(t, "Unknown", d["country"])
	assert.Equal(t, float64(0), d["latitude"])
	assert.Equal(t, "Firefox 120", d["browser_name_and_version"])
	assert.NotContains(t, d, "device_model")
	assert.NotContains(t, d, "time_zone")
}

func TestTransactionChannelMasking(t *testing.T) {
	b := newTestBuilder(3)
	ch := NewChannelRandomizer(random.NewSeeded(9, 9), fixedNow)

	cases := []struct {
		mode, txType, payMode string
		filled, masked        []string
	}{
		{ModeBankTransfer, "net_banking", "netbanking",
			[]string{"recipient_account_no", "bank_name", "ifsc_code"}, []string{"upi_id", "credit_card_no", "atm_id", "debit_card_no"}},
		{ModeUPI, "upi", "upi",
			[]string{"recipient_upi_id", "sender_upi_id"}, []string{"bank_name", "credit_card_no"}},
		{ModeCreditCard, "card", "creditcard",
			[]string{"credit_card_no", "credit_card_cvv"}, []string{"debit_card_no", "bank_name"}},
		{ModeDebitCard, "card", "debitcard",
			[]string{"debit_card_no", "debit_card_expiry"}, []string{"credit_card_no", "branch_code"}},
		{ModeATM, "atm", "atm",
			[]string{"bank_name", "account_no", "debit_card_no", "branch_code", "atm_id", "cash_dispenser_status"},
			[]string{"recipient_account_no", "credit_card_no", "sender_upi_id"}},
	}
	for _, tc := range cases {
		t.Run(tc.mode, func(t *testing.T) {
			p := b.Transaction(androidDevice(), TransactionContext{Type: tc.mode}, ch.Generate(tc.mode), "")
			m := toMap(t, p)
			td := m["transactionDetails"].(map[string]any)

			assert.Equal(t, tc.txType, td["transaction_type"])
			assert.Equal(t, tc.payMode, td["payment_mode"])
			for _, f := range tc.filled {
				assert.NotEqual(t, NotApplicable, td[f], f)
			}
			for _, f := range tc.masked {
				if v, ok := td[f]; ok {
					assert.Equal(t, NotApplicable, v, f)
				}
			}
			if tc.mode == ModeATM {
				assert.NotContains(t, td, "time_taken_to_complete_transaction")
			} else {
				assert.Equal(t, float64(5), td["time_taken_to_complete_transaction"])
			}
			assert.Equal(t, "UnknownUser", m["userDetails"].(map[string]any)["user_id"])
		})
	}
}

func TestTransactionDefaults(t *testing.T) {
	p := newTestBuilder(4).Transaction(androidDevice(), TransactionContext{}, EmptyChannelFields(), "u1")
	td := p.TransactionDetails
	assert.Regexp(t, regexp.MustCompile(`^TXN\d{16}$`), td.TransactionID)
	assert.Equal(t, float64(100), td.TransactionAmount)
	assert.Equal(t, "Online", td.TransactionCategory)
	assert.Equal(t, "INR", td.TransactionCurrency)
	assert.Equal(t, "one-time", td.TransactionFrequency)
	assert.Nil(t, p.DeviceDetails.TimeTakenToCompleteLogin)

	raw, err := json.Marshal(p.DeviceDetails)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "time_taken")
}

func TestChannelRandomizerFormats(t *testing.T) {
	r := NewChannelRandomizer(random.NewSeeded(5, 6), fixedNow)
	ifsc := regexp.MustCompile(`^[A-Z]{4}0\d{6}$`)
	upi := regexp.MustCompile(`^(user|pay|personal|business|shop|store)\d{4}@(okicici|oksbi|okhdfc|okhdfcbank|okaxis)$`)
	expiry := regexp.MustCompile(`^(0[1-9]|1[0-2])/(25|26|27|28|29)$`)

	for i := 0; i < 50; i++ {
		bt := r.Generate(ModeBankTransfer)
		assert.Regexp(t, ifsc, bt.IFSCCode)
		assert.Regexp(t, ifsc, bt.RecipientIFSCCode)
		assert.Len(t, bt.AccountNo, 12)

		u := r.Generate(ModeUPI)
		assert.Regexp(t, upi, u.SenderUPIID)

		cc := r.Generate(ModeCreditCard)
		assert.Regexp(t, expiry, cc.CreditCardExpiry)
		assert.Len(t, cc.CreditCardNo, 16)
		assert.Len(t, cc.CreditCardCVV, 3)

		atm := r.Generate(ModeATM)
		assert.Contains(t, []string{"1", "2", "3"}, atm.NumberOfPinTries)
		assert.Contains(t, dispenserStates, atm.CashDispenserStatus)
		assert.True(t, strings.HasPrefix(atm.ATMID, "ATM"))
		assert.Len(t, atm.ATMID, 8)
		assert.Len(t, atm.BranchCode, 4)
	}
	assert.True(t, strings.HasPrefix(r.IFSC("Nonexistent Bank"), "HDFC0"))
	assert.Equal(t, EmptyChannelFields(), r.Generate("cash"))
}

func TestRandomTimestamp(t *testing.T) {
	b := newTestBuilder(6)
	now := "2025-06-01 12:00:00"

	assert.Equal(t, now, b.RandomTimestamp("", "2025-01-01T00:00"))
	assert.Equal(t, "2025-01-01T00:00", b.RandomTimestamp("2025-01-01T00:00", "2025-01-01T00:00"))
	assert.Equal(t, now, b.RandomTimestamp("2025-02-01T00:00", "2025-01-01T00:00"))
	assert.Equal(t, now, b.RandomTimestamp("garbage", "2025-01-01T00:00"))

	for i := 0; i < 20; i++ {
		got := b.RandomTimestamp("2025-01-01T00:00", "2025-01-02T00:00")
		assert.True(t, got >= "2025-01-01 00:00:00" && got <= "2025-01-02 00:00:00", got)
	}
}

func TestNumAcceptsStrings(t *testing.T) {
	var ctx TransactionContext
	require.NoError(t, json.Unmarshal([]byte(`{"vpn_check":"1","transaction_amount":250,"transaction_amount_min":"","time_taken_to_complete_transaction":null}`), &ctx))
	assert.Equal(t, Num(1), ctx.VPNCheck)
	assert.Equal(t, Num(250), ctx.Amount)
	assert.Zero(t, ctx.AmountMin)

	assert.Error(t, json.Unmarshal([]byte(`{"vpn_check":"yes"}`), &ctx))
}
