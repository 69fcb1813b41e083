// Package payload assembles the login and transaction bodies the RBA/FRM API
// scores, from a stored device profile plus operator supplied context.
package payload

import (
	"strconv"
	"time"

	"github.com/bluebricks/rba-harness/internal/models"
	"github.com/bluebricks/rba-harness/internal/util/random"
	"github.com/bluebricks/rba-harness/internal/util/timefmt"
)

const defaultTimeTaken = 5

// DeviceDetails is the deviceDetails object of both payload kinds.
type DeviceDetails struct {
	DeviceID                 string            `json:"device_id"`
	DeviceFingerprint        string            `json:"device_fingerprint"`
	DeviceType               models.DeviceType `json:"device_type"`
	OperatingSystem          string            `json:"operating_system_and_version"`
	CarrierName              string            `json:"carrier_name"`
	NetworkType              string            `json:"network_type"`
	IPAddress                string            `json:"ip_address"`
	ScreenResolution         string            `json:"screen_resolution"`
	DeviceLanguage           string            `json:"device_language"`
	OSRelease                int               `json:"os_release"`
	Latitude                 float64           `json:"latitude"`
	Longitude                float64           `json:"longitude"`
	City                     string            `json:"city"`
	Country                  string            `json:"country"`
	Timestamp                string            `json:"timestamp"`
	TimeTakenToCompleteLogin *float64          `json:"time_taken_to_complete_login,omitempty"`
	TimeZone                 string            `json:"time_zone,omitempty"`
	VPNCheck                 float64           `json:"vpn_check"`
	BrowserNameAndVersion    string            `json:"browser_name_and_version,omitempty"`

	*MobileDetails
	*AndroidDetails
	*IOSDetails
}

type MobileDetails struct {
	DeviceModel              string `json:"device_model"`
	DeviceManufacturer       string `json:"device_manufacturer"`
	DeviceBrand              string `json:"device_brand"`
	DeviceHardware           string `json:"device_hardware"`
	OSSDK                    int    `json:"os_sdk"`
	OSSecurityPatch          string `json:"os_security_patch"`
	BatteryLevel             int    `json:"battery_level"`
	AppPackage               string `json:"app_package"`
	AppVersion               string `json:"app_version"`
	Inclination              string `json:"inclination"`
	DeviceVelocity           string `json:"deviceVelocity"`
	Gravity                  string `json:"gravity"`
	MagneticField            string `json:"magneticField"`
	Gyroscope                string `json:"gyroscope"`
	HardwareBiometricSupport int    `json:"hardware_biometric_support"`
	IsEmulator               int    `json:"is_emulator"`
}

type AndroidDetails struct {
	IsRooted           int    `json:"is_rooted"`
	SecurityADBEnabled int    `json:"security_adb_enabled"`
	SecurityDevMode    int    `json:"security_dev_mode"`
	AppInstallTime     string `json:"app_install_time"`
	AppUpdateTime      string `json:"app_update_time"`
}

type IOSDetails struct {
	IsJailbroken int `json:"is_jailbroken"`
}

type UserDetails struct {
	UserID string `json:"user_id"`
}

// LoginPayload is the RBA login body.
type LoginPayload struct {
	DeviceDetails DeviceDetails `json:"deviceDetails"`
	UserDetails   UserDetails   `json:"userDetails"`
	Secret        string        `json:"secret"`
}

// TransactionPayload is the FRM transaction monitoring body.
type TransactionPayload struct {
	DeviceDetails      DeviceDetails      `json:"deviceDetails"`
	UserDetails        UserDetails        `json:"userDetails"`
	TransactionDetails TransactionDetails `json:"transactionDetails"`
	Secret             string             `json:"secret"`
}

// Builder assembles payloads. secret is the account secret echoed in every body.
type Builder struct {
	rng    *random.Rand
	now    func() time.Time
	secret string
}

func NewBuilder(rng *random.Rand, now func() time.Time, secret string) *Builder {
	if rng == nil {
		rng = random.New()
	}
	if now == nil {
		now = time.Now
	}
	return &Builder{rng: rng, now: now, secret: secret}
}

// Login builds a login payload. An empty timestamp means now and a zero
// time taken means the default of 5.
func (b *Builder) Login(device models.DeviceProfile, ctx LoginContext, userID string) LoginPayload {
	timeTaken := float64(ctx.TimeTaken)
	if timeTaken == 0 {
		timeTaken = defaultTimeTaken
	}
	details := b.deviceDetails(device, ctx.Location)
	details.TimeTakenToCompleteLogin = &timeTaken
	return LoginPayload{
		DeviceDetails: details,
		UserDetails:   UserDetails{UserID: userID},
		Secret:        b.secret,
	}
}

// RandomInt is uniform over [min, max]; reversed bounds are swapped.
func (b *Builder) RandomInt(min, max int) int {
	return b.rng.Between(min, max)
}

// RandomTimestamp picks a wall-clock time in [start, end]. Missing, unparsable
// or reversed bounds yield now; equal bounds yield start unchanged.
func (b *Builder) RandomTimestamp(start, end string) string {
	if start == "" || end == "" {
		return timefmt.Timestamp(b.now())
	}
	if start == end {
		return start
	}
	lo, ok1 := timefmt.Parse(start)
	hi, ok2 := timefmt.Parse(end)
	if !ok1 || !ok2 || !lo.Before(hi) {
		return timefmt.Timestamp(b.now())
	}
	span := hi.Sub(lo)
	offset := time.Duration(b.rng.Float64() * float64(span))
	return timefmt.Timestamp(lo.Add(offset))
}

// TransactionID is "TXN" followed by 16 digits.
func (b *Builder) TransactionID() string {
	return "TXN" + b.rng.Digits(16)
}

func (b *Builder) deviceDetails(device models.DeviceProfile, loc Location) DeviceDetails {
	lat, lon := Coordinates(loc.City)
	d := DeviceDetails{
		DeviceID:          device.DeviceID,
		DeviceFingerprint: device.DeviceFingerprint,
		DeviceType:        device.DeviceType,
		OperatingSystem:   device.OperatingSystem,
		CarrierName:       device.CarrierName,
		NetworkType:       device.NetworkType,
		IPAddress:         device.IPAddress,
		ScreenResolution:  device.ScreenResolution,
		DeviceLanguage:    orDefault(device.DeviceLanguage, "en-US"),
		OSRelease:         device.OSRelease,
		Latitude:          lat,
		Longitude:         lon,
		City:              orDefault(loc.City, "Unknown"),
		Country:           orDefault(loc.Country, "Unknown"),
		Timestamp:         orDefault(loc.Timestamp, timefmt.Timestamp(b.now())),
		TimeZone:          loc.TimeZone,
		VPNCheck:          float64(loc.VPNCheck),
	}

	if device.DeviceType == models.DeviceWeb {
		d.BrowserNameAndVersion = device.BrowserNameAndVersion
	}
	if device.DeviceType.IsMobile() && device.MobileAttributes != nil {
		m := device.MobileAttributes
		d.MobileDetails = &MobileDetails{
			DeviceModel:              orDefault(m.DeviceModel, "Unknown"),
			DeviceManufacturer:       m.DeviceManufacturer,
			DeviceBrand:              m.DeviceBrand,
			DeviceHardware:           m.DeviceHardware,
			OSSDK:                    m.OSSDK,
			OSSecurityPatch:          m.OSSecurityPatch,
			BatteryLevel:             m.BatteryLevel,
			AppPackage:               m.AppPackage,
			AppVersion:               m.AppVersion,
			Inclination:              m.Inclination,
			DeviceVelocity:           m.DeviceVelocity,
			Gravity:                  m.Gravity,
			MagneticField:            m.MagneticField,
			Gyroscope:                m.Gyroscope,
			HardwareBiometricSupport: flag(m.HardwareBiometricSupport),
			IsEmulator:               flag(m.IsEmulator),
		}
	}
	if device.DeviceType == models.DeviceAndroid && device.AndroidAttributes != nil {
		a := device.AndroidAttributes
		d.AndroidDetails = &AndroidDetails{
			IsRooted:           flag(a.IsRooted),
			SecurityADBEnabled: flag(a.SecurityADBEnabled),
			SecurityDevMode:    flag(a.SecurityDevMode),
			AppInstallTime:     a.AppInstallTime,
			AppUpdateTime:      a.AppUpdateTime,
		}
	}
	if device.DeviceType == models.DeviceIOS && device.IOSAttributes != nil {
		d.IOSDetails = &IOSDetails{IsJailbroken: flag(device.IsJailbroken)}
	}
	return d
}

// flag converts "0"/"1" style strings, anything unparsable is 0.
func flag(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
