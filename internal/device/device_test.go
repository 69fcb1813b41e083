package device

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluebricks/rba-harness/internal/models"
	"github.com/bluebricks/rba-harness/internal/util/random"
)

var (
	hex32   = regexp.MustCompile(`^[0-9a-f]{32}$`)
	vector8 = regexp.MustCompile(`^\[-?\d+\.\d{8}, -?\d+\.\d{8}, -?\d+\.\d{8}\]$`)
	vectorE = regexp.MustCompile(`^\[-?\d\.\d{8}e[+-]\d+, -?\d\.\d{8}e[+-]\d+, -?\d\.\d{8}e[+-]\d+\]$`)
	patch   = regexp.MustCompile(`^202[45]-(0[1-9]|1[0-2])-(0[1-9]|1\d|2[0-8])$`)
)

func fixedNow() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

func newTestGenerator(seed uint64) *Generator {
	return NewGenerator(random.NewSeeded(seed, seed+1), fixedNow)
}

func assertBase(t *testing.T, p models.DeviceProfile, dt models.DeviceType) {
	t.Helper()
	assert.Equal(t, dt, p.DeviceType)
	assert.Regexp(t, hex32, p.DeviceID)
	assert.Regexp(t, hex32, p.DeviceFingerprint)
	assert.Contains(t, ispNames, p.ISPName)
	assert.Contains(t, ispNames, p.CarrierName)
	assert.Contains(t, networkTypes, p.NetworkType)
	assert.Contains(t, deviceLanguages, p.DeviceLanguage)
	assert.Contains(t, osVersions[dt], p.OperatingSystem)
	assert.Contains(t, screenResolutions[dt], p.ScreenResolution)
	assert.GreaterOrEqual(t, p.OSRelease, 10)
	assert.LessOrEqual(t, p.OSRelease, 17)

	octets := strings.Split(p.IPAddress, ".")
	require.Len(t, octets, 4)
	first, err := strconv.Atoi(octets[0])
	require.NoError(t, err)
	assert.True(t, first >= 1 && first <= 223, "first octet %d", first)
	for _, o := range octets[1:] {
		n, err := strconv.Atoi(o)
		require.NoError(t, err)
		assert.True(t, n >= 0 && n <= 255)
	}
}

func assertMobile(t *testing.T, m *models.MobileAttributes, dt models.DeviceType) {
	t.Helper()
	require.NotNil(t, m)
	assert.Contains(t, []string{"0", "1"}, m.HardwareBiometricSupport)
	assert.Contains(t, []string{"0", "1"}, m.IsEmulator)
	assert.Contains(t, deviceModels[dt], m.DeviceModel)
	manufacturer, brand := ManufacturerAndBrand(m.DeviceModel)
	assert.Equal(t, manufacturer, m.DeviceManufacturer)
	assert.Equal(t, brand, m.DeviceBrand)
	assert.Contains(t, hardwareOptions, m.DeviceHardware)
	assert.True(t, m.OSSDK >= 21 && m.OSSDK <= 35)
	assert.Regexp(t, patch, m.OSSecurityPatch)
	assert.True(t, m.BatteryLevel >= 0 && m.BatteryLevel <= 100)
	assert.Contains(t, appPackages, m.AppPackage)

	v, err := strconv.ParseFloat(m.AppVersion, 64)
	require.NoError(t, err)
	assert.True(t, v >= 1.0 && v <= 3.5, "app version %s", m.AppVersion)

	for _, s := range []string{m.Inclination, m.DeviceVelocity, m.Gravity, m.MagneticField} {
		assert.Regexp(t, vector8, s)
	}
	assert.Regexp(t, vectorE, m.Gyroscope)
}

func TestGenerateAndroid(t *testing.T) {
	g := newTestGenerator(1)
	for i := 0; i < 50; i++ {
		p := g.Generate(models.DeviceAndroid)
		assertBase(t, p, models.DeviceAndroid)
		assertMobile(t, p.MobileAttributes, models.DeviceAndroid)
		require.NotNil(t, p.AndroidAttributes)
		assert.Nil(t, p.IOSAttributes)

		a := p.AndroidAttributes
		for _, flag := range []string{a.IsRooted, a.SecurityADBEnabled, a.SecurityDevMode} {
			assert.Contains(t, []string{"0", "1"}, flag)
		}
		for _, ts := range []string{a.AppInstallTime, a.AppUpdateTime} {
			ms, err := strconv.ParseInt(ts, 10, 64)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, ms, fixedNow().UnixMilli())
			assert.Less(t, ms, fixedNow().Add(appTimestampWindow).UnixMilli())
		}
		assert.True(t, strings.HasPrefix(p.BrowserNameAndVersion, "Chrome ") ||
			strings.HasPrefix(p.BrowserNameAndVersion, "Firefox "))
	}
}

func TestGenerateIOS(t *testing.T) {
	g := newTestGenerator(2)
	for i := 0; i < 50; i++ {
		p := g.Generate(models.DeviceIOS)
		assertBase(t, p, models.DeviceIOS)
		assertMobile(t, p.MobileAttributes, models.DeviceIOS)
		assert.Nil(t, p.AndroidAttributes)
		require.NotNil(t, p.IOSAttributes)
		assert.Contains(t, []string{"0", "1"}, p.IsJailbroken)
		assert.Equal(t, "Apple", p.DeviceManufacturer)
	}
}

func TestGenerateWebSafariOnlyOnMacOS(t *testing.T) {
	g := newTestGenerator(3)
	for i := 0; i < 200; i++ {
		p := g.Generate(models.DeviceWeb)
		assertBase(t, p, models.DeviceWeb)
		assert.Nil(t, p.MobileAttributes)
		assert.Nil(t, p.AndroidAttributes)
		assert.Nil(t, p.IOSAttributes)
		if strings.HasPrefix(p.BrowserNameAndVersion, "Safari") {
			assert.Contains(t, strings.ToLower(p.OperatingSystem), "macos")
		}
	}
}

func TestGenerateWebOmitsMobileFieldsInJSON(t *testing.T) {
	raw, err := json.Marshal(newTestGenerator(4).Generate(models.DeviceWeb))
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.NotContains(t, m, "device_model")
	assert.NotContains(t, m, "is_rooted")
	assert.Contains(t, m, "browser_name_and_version")
	assert.Len(t, m, 12)
}

func TestProfilesOrder(t *testing.T) {
	profiles := newTestGenerator(5).Profiles()
	require.Len(t, profiles, 3)
	assert.Equal(t, models.DeviceAndroid, profiles[0].DeviceType)
	assert.Equal(t, models.DeviceIOS, profiles[1].DeviceType)
	assert.Equal(t, models.DeviceWeb, profiles[2].DeviceType)
}

func TestExponent8(t *testing.T) {
	assert.Equal(t, "1.23456789e-3", exponent8(0.00123456789))
	assert.Equal(t, "-5.00000000e-3", exponent8(-0.005))
	assert.Equal(t, "0.00000000e+0", exponent8(0))
}

func TestManufacturerFallback(t *testing.T) {
	m, b := ManufacturerAndBrand("Nokia 3310")
	assert.Equal(t, "vivo", m)
	assert.Equal(t, "iQOO", b)
}

func TestStoreLoadErrors(t *testing.T) {
	dir := t.TempDir()

	s := NewStore(filepath.Join(dir, "missing.json"), newTestGenerator(6))
	_, err := s.Load()
	assert.ErrorIs(t, err, ErrStoreRead)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o600))
	_, err = NewStore(bad, newTestGenerator(6)).Load()
	assert.ErrorIs(t, err, ErrStoreFormat)
}

func TestStoreAddProfilesRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device_data", "device_details.json")
	s := NewStore(path, newTestGenerator(7))

	require.NoError(t, s.AddProfiles([]string{"alice", "bob"}))
	raw, err := s.Load()
	require.NoError(t, err)

	var details models.DeviceDetails
	require.NoError(t, json.Unmarshal(raw, &details))
	require.Len(t, details, 2)
	require.Len(t, details["alice"], 3)
	assert.Equal(t, models.DeviceIOS, details["alice"][1].DeviceType)
	require.NotNil(t, details["alice"][0].AndroidAttributes)

	p, ok := s.ProfileFor("bob", models.DeviceWeb)
	require.True(t, ok)
	assert.Equal(t, models.DeviceWeb, p.DeviceType)

	_, ok = s.ProfileFor("carol", models.DeviceWeb)
	assert.False(t, ok)
	assert.True(t, s.Has("bob"))
	assert.False(t, s.Has("carol"))
	assert.ElementsMatch(t, []string{"alice", "bob"}, s.UserIDs())
}

func TestStoreAddProfilesKeepsOtherUsersAndReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device_details.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"keep":{"custom":true},"alice":[]}`), 0o600))
	s := NewStore(path, newTestGenerator(8))

	require.NoError(t, s.AddProfiles([]string{"alice"}))

	var doc map[string]json.RawMessage
	raw, err := s.Load()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.JSONEq(t, `{"custom":true}`, string(doc["keep"]))

	var alice []models.DeviceProfile
	require.NoError(t, json.Unmarshal(doc["alice"], &alice))
	assert.Len(t, alice, 3)
}

func TestStoreAddProfilesRecoversFromCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device_details.json")
	require.NoError(t, os.WriteFile(path, []byte("[1,2"), 0o600))
	s := NewStore(path, newTestGenerator(9))

	require.NoError(t, s.AddProfiles([]string{"u1"}))
	assert.Equal(t, []string{"u1"}, s.UserIDs())
}

func TestStoreWriteFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	s := NewStore(filepath.Join(blocker, "device_details.json"), newTestGenerator(10))
	err := s.AddProfiles([]string{"u1"})
	assert.ErrorIs(t, err, ErrStoreWrite)
}

func TestStoreReplaceAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device_details.json")
	g := newTestGenerator(11)
	s := NewStore(path, g)
	require.NoError(t, s.AddProfiles([]string{"old"}))

	require.NoError(t, s.ReplaceAll(models.DeviceDetails{"new": g.Profiles()}))
	assert.Equal(t, []string{"new"}, s.UserIDs())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n  \"new\": [")
}
