package device

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bluebricks/rba-harness/internal/models"
	"github.com/bluebricks/rba-harness/internal/util/random"
)

const appTimestampWindow = 7 * 24 * time.Hour

// Generator produces synthetic device profiles.
type Generator struct {
	rng *random.Rand
	now func() time.Time
}

func NewGenerator(rng *random.Rand, now func() time.Time) *Generator {
	if rng == nil {
		rng = random.New()
	}
	if now == nil {
		now = time.Now
	}
	return &Generator{rng: rng, now: now}
}

// Profiles returns one profile per platform in models.ProfileOrder.
func (g *Generator) Profiles() []models.DeviceProfile {
	out := make([]models.DeviceProfile, 0, len(models.ProfileOrder))
	for _, dt := range models.ProfileOrder {
		out = append(out, g.Generate(dt))
	}
	return out
}

// Generate builds a random profile for dt. Unknown types use the web lists
// but keep the requested type name.
func (g *Generator) Generate(dt models.DeviceType) models.DeviceProfile {
	lists := dt
	if _, ok := osVersions[dt]; !ok {
		lists = models.DeviceWeb
	}

	osVersion := random.Pick(g.rng, osVersions[lists])
	p := models.DeviceProfile{
		DeviceID:              g.rng.Hex(32),
		DeviceFingerprint:     g.rng.Hex(32),
		DeviceType:            dt,
		IPAddress:             g.ip(),
		OperatingSystem:       osVersion,
		BrowserNameAndVersion: g.browser(lists, osVersion),
		ScreenResolution:      random.Pick(g.rng, screenResolutions[lists]),
		ISPName:               random.Pick(g.rng, ispNames),
		CarrierName:           random.Pick(g.rng, ispNames),
		NetworkType:           random.Pick(g.rng, networkTypes),
		DeviceLanguage:        random.Pick(g.rng, deviceLanguages),
		OSRelease:             g.rng.Between(10, 17),
	}

	if dt.IsMobile() {
		p.MobileAttributes = g.mobile(dt)
	}
	switch dt {
	case models.DeviceAndroid:
		p.AndroidAttributes = &models.AndroidAttributes{
			IsRooted:           g.rng.Chance(0.2),
			SecurityADBEnabled: g.rng.Chance(0.5),
			SecurityDevMode:    g.rng.Chance(0.5),
			AppInstallTime:     g.appTimestamp(),
			AppUpdateTime:      g.appTimestamp(),
		}
	case models.DeviceIOS:
		p.IOSAttributes = &models.IOSAttributes{IsJailbroken: g.rng.Chance(0.15)}
	}
	return p
}

func (g *Generator) mobile(dt models.DeviceType) *models.MobileAttributes {
	model := random.Pick(g.rng, deviceModels[dt])
	manufacturer, brand := ManufacturerAndBrand(model)
	return &models.MobileAttributes{
		HardwareBiometricSupport: g.rng.Chance(0.7),
		IsEmulator:               g.rng.Chance(0.1),
		DeviceModel:              model,
		DeviceManufacturer:       manufacturer,
		DeviceBrand:              brand,
		DeviceHardware:           random.Pick(g.rng, hardwareOptions),
		OSSDK:                    g.rng.Between(21, 35),
		OSSecurityPatch: fmt.Sprintf("%d-%02d-%02d",
			2024+g.rng.IntN(2), g.rng.Between(1, 12), g.rng.Between(1, 28)),
		BatteryLevel:   g.rng.Between(0, 100),
		AppPackage:     random.Pick(g.rng, appPackages),
		AppVersion:     strconv.FormatFloat(g.rng.Float64()*2.5+1, 'f', 1, 64),
		Inclination:    g.vector(-1, 10, fixed8),
		DeviceVelocity: g.vector(-5, 10, fixed8),
		Gravity:        g.vector(-1, 10, fixed8),
		MagneticField:  g.vector(-50, 100, fixed8),
		Gyroscope:      g.vector(-0.01, 0.02, exponent8),
	}
}

func (g *Generator) ip() string {
	return fmt.Sprintf("%d.%d.%d.%d",
		g.rng.Between(1, 223), g.rng.IntN(256), g.rng.IntN(256), g.rng.IntN(256))
}

// browser picks "Name version". Safari is only offered to web devices running macOS.
func (g *Generator) browser(dt models.DeviceType, osVersion string) string {
	candidates := browserVersions[dt]
	if dt == models.DeviceWeb && !strings.Contains(strings.ToLower(osVersion), "macos") {
		filtered := make([]browser, 0, len(candidates))
		for _, b := range candidates {
			if b.name != "Safari" {
				filtered = append(filtered, b)
			}
		}
		candidates = filtered
	}
	b := random.Pick(g.rng, candidates)
	return b.name + " " + random.Pick(g.rng, b.versions)
}

func (g *Generator) appTimestamp() string {
	offset := g.rng.Int64N(appTimestampWindow.Milliseconds())
	return strconv.FormatInt(g.now().UnixMilli()+offset, 10)
}

// vector renders three samples from [offset, offset+span) as "[a, b, c]".
func (g *Generator) vector(offset, span float64, format func(float64) string) string {
	parts := make([]string, 3)
	for i := range parts {
		parts[i] = format(g.rng.Float64()*span + offset)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func fixed8(v float64) string {
	return strconv.FormatFloat(v, 'f', 8, 64)
}

// exponent8 formats like "1.23456789e-3": eight fraction digits and an
// exponent without zero padding.
func exponent8(v float64) string {
	s := strconv.FormatFloat(v, 'e', 8, 64)
	mantissa, exp, ok := strings.Cut(s, "e")
	if !ok {
		return s
	}
	sign := exp[:1]
	digits := strings.TrimLeft(exp[1:], "0")
	if digits == "" {
		digits = "0"
	}
	return mantissa + "e" + sign + digits
}
