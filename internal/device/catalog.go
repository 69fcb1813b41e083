package device

import "github.com/bluebricks/rba-harness/internal/models"

var (
	hardwareOptions = []string{"qcom", "exynos", "kirin", "apple", "mediatek", "unisoc"}

	appPackages = []string{
		"com.bluebricks.rbasampleapp",
		"com.example.app",
		"com.test.app",
		"com.demo.rba",
	}

	deviceLanguages = []string{"en-US", "hi-IN", "fr-FR", "es-ES", "zh-CN", "de-DE"}

	osVersions = map[models.DeviceType][]string{
		models.DeviceAndroid: {"Android 13", "Android 12", "Android 11"},
		models.DeviceIOS:     {"iOS 16.5", "iOS 16.4", "iOS 15.7"},
		models.DeviceWeb: {
			"Windows 11", "Windows 10",
			"macOS 13.4", "macOS 12.6",
			"Ubuntu 22.04", "Ubuntu 20.04",
		},
	}

	browserVersions = map[models.DeviceType][]browser{
		models.DeviceAndroid: {
			{"Chrome", []string{"137.0.0.0", "136.0.0.0"}},
			{"Firefox", []string{"114.0", "113.0"}},
		},
		models.DeviceIOS: {
			{"Safari", []string{"16.5", "16.4", "15.7"}},
			{"Chrome", []string{"137.0.0.0", "136.0.0.0"}},
		},
		models.DeviceWeb: {
			{"Chrome", []string{"137.0.0.0", "136.0.0.0"}},
			{"Firefox", []string{"114.0", "113.0"}},
			{"Safari", []string{"16.5"}},
			{"Edge", []string{"114.0.1823.43", "113.0.1774.57"}},
		},
	}

	screenResolutions = map[models.DeviceType][]string{
		models.DeviceAndroid: {"1080x1920"},
		models.DeviceIOS:     {"1170x2532"},
		models.DeviceWeb:     {"1920x1080"},
	}

	ispNames = []string{
		"Bharti Airtel Ltd., Telemedia Services",
		"Reliance Jio Infocomm Ltd.",
		"Vodafone Idea Ltd.",
		"BSNL Broadband",
		"Hathway Cable & Datacom Ltd.",
		"ACT Fibernet",
	}

	networkTypes = []string{"4G", "5G", "Wi-Fi", "Ethernet"}

	deviceModels = map[models.DeviceType][]string{
		models.DeviceWeb:     {"Macintosh", "Windows PC", "Chromebook", "Linux Desktop"},
		models.DeviceAndroid: {"Pixel 7", "Samsung Galaxy S23", "OnePlus 11", "Xiaomi Mi 13"},
		models.DeviceIOS:     {"iPhone 14", "iPhone 13 Pro", "iPad Pro", "iPhone SE"},
	}

	modelInfo = map[string]manufacturerBrand{
		"Pixel 7":            {"Google", "Pixel"},
		"Samsung Galaxy S23": {"Samsung", "Galaxy"},
		"OnePlus 11":         {"OnePlus", "OnePlus"},
		"Xiaomi Mi 13":       {"Xiaomi", "Mi"},
		"iPhone 14":          {"Apple", "iPhone"},
		"iPhone 13 Pro":      {"Apple", "iPhone"},
		"iPad Pro":           {"Apple", "iPad"},
		"iPhone SE":          {"Apple", "iPhone"},
		"Macintosh":          {"Apple", "Macintosh"},
		"Windows PC":         {"Microsoft", "Windows"},
		"Chromebook":         {"Google", "Chromebook"},
		"Linux Desktop":      {"Linux", "Linux"},
	}
)

type browser struct {
	name     string
	versions []string
}

type manufacturerBrand struct {
	manufacturer string
	brand        string
}

// ManufacturerAndBrand resolves a model name, falling back to vivo/iQOO.
func ManufacturerAndBrand(model string) (string, string) {
	if mb, ok := modelInfo[model]; ok {
		return mb.manufacturer, mb.brand
	}
	return "vivo", "iQOO"
}
