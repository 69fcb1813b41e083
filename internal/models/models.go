package models

import "strings"

// DeviceType is the platform a synthetic device profile represents.
type DeviceType string

const (
	DeviceAndroid DeviceType = "android"
	DeviceIOS     DeviceType = "ios"
	DeviceWeb     DeviceType = "web"
)

// ProfileOrder is the order in which per-user profiles are stored.
var ProfileOrder = []DeviceType{DeviceAndroid, DeviceIOS, DeviceWeb}

// ParseDeviceType normalises s; anything unrecognised is treated as web.
func ParseDeviceType(s string) DeviceType {
	switch DeviceType(strings.ToLower(strings.TrimSpace(s))) {
	case DeviceAndroid:
		return DeviceAndroid
	case DeviceIOS:
		return DeviceIOS
	default:
		return DeviceWeb
	}
}

// Code is the numeric device type used by the upstream API (android=1, ios=2, web=3).
func (d DeviceType) Code() int {
	switch d {
	case DeviceAndroid:
		return 1
	case DeviceIOS:
		return 2
	default:
		return 3
	}
}

// IsMobile reports whether d carries the mobile attribute set.
func (d DeviceType) IsMobile() bool {
	return d == DeviceAndroid || d == DeviceIOS
}

// DeviceProfile is a synthetic device fingerprint. Platform specific attributes
// live in the embedded pointers so they are omitted for other platforms.
type DeviceProfile struct {
	DeviceID              string     `json:"device_id"`
	DeviceFingerprint     string     `json:"device_fingerprint"`
	DeviceType            DeviceType `json:"device_type"`
	IPAddress             string     `json:"ip_address"`
	OperatingSystem       string     `json:"operating_system_and_version"`
	BrowserNameAndVersion string     `json:"browser_name_and_version"`
	ScreenResolution      string     `json:"screen_resolution"`
	ISPName               string     `json:"isp_name"`
	CarrierName           string     `json:"carrier_name"`
	NetworkType           string     `json:"network_type"`
	DeviceLanguage        string     `json:"device_language"`
	OSRelease             int        `json:"os_release"`

	*MobileAttributes
	*AndroidAttributes
	*IOSAttributes
}

type MobileAttributes struct {
	HardwareBiometricSupport string `json:"hardware_biometric_support"`
	IsEmulator               string `json:"is_emulator"`
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
}

type AndroidAttributes struct {
	IsRooted           string `json:"is_rooted"`
	SecurityADBEnabled string `json:"security_adb_enabled"`
	SecurityDevMode    string `json:"security_dev_mode"`
	AppInstallTime     string `json:"app_install_time"`
	AppUpdateTime      string `json:"app_update_time"`
}

type IOSAttributes struct {
	IsJailbroken string `json:"is_jailbroken"`
}

// DeviceDetails maps a user ID to its profiles in ProfileOrder.
type DeviceDetails map[string][]DeviceProfile
