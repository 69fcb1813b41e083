package payload

import "strings"

// City is a mock geocoding entry.
type City struct {
	Name      string
	Latitude  float64
	Longitude float64
}

// CountryCities groups the mock cities of one country.
type CountryCities struct {
	Country string
	Cities  []City
}

// Locations is the mock geocoding table in display order.
var Locations = []CountryCities{
	{Country: "India", Cities: []City{
		{"Mumbai", 19.0760, 72.8777},
		{"Delhi", 28.6139, 77.2090},
		{"Bangalore", 12.9716, 77.5946},
		{"Hyderabad", 17.3850, 78.4867},
		{"Chennai", 13.0827, 80.2707},
		{"Kolkata", 22.5726, 88.3639},
		{"Pune", 18.5204, 73.8567},
		{"Ahmedabad", 23.0225, 72.5714},
		{"Jaipur", 26.9124, 75.7873},
		{"Lucknow", 26.8467, 80.9462},
		{"Chandigarh", 30.7333, 76.7794},
		{"Bhopal", 23.2599, 77.4126},
		{"Indore", 22.7196, 75.8577},
		{"Nagpur", 21.1458, 79.0882},
		{"Kochi", 9.9312, 76.2673},
		{"Thiruvananthapuram", 8.5241, 76.9366},
		{"Surat", 21.1702, 72.8311},
		{"Guwahati", 26.1445, 91.7362},
		{"Bhubaneswar", 20.2961, 85.8245},
		{"Patna", 25.5941, 85.1376},
	}},
	{Country: "Japan", Cities: []City{
		{"Tokyo", 35.6895, 139.6917},
		{"Osaka", 34.6937, 135.5023},
		{"Kyoto", 35.0116, 135.7681},
		{"Yokohama", 35.4437, 139.6380},
		{"Sapporo", 43.0621, 141.3544},
		{"Nagoya", 35.1815, 136.9066},
		{"Fukuoka", 33.5902, 130.4017},
		{"Kobe", 34.6901, 135.1955},
		{"Hiroshima", 34.3853, 132.4553},
		{"Sendai", 38.2682, 140.8694},
	}},
	{Country: "USA", Cities: []City{
		{"New York", 40.7128, -74.0060},
		{"Los Angeles", 34.0522, -118.2437},
		{"Chicago", 41.8781, -87.6298},
		{"Houston", 29.7604, -95.3698},
		{"San Francisco", 37.7749, -122.4194},
		{"Boston", 42.3601, -71.0589},
		{"Seattle", 47.6062, -122.3321},
		{"Dallas", 32.7767, -96.7970},
		{"Miami", 25.7617, -80.1918},
	}},
	{Country: "UK", Cities: []City{
		{"London", 51.5074, -0.1278},
		{"Manchester", 53.4808, -2.2426},
		{"Birmingham", 52.4862, -1.8904},
		{"Liverpool", 53.4084, -2.9916},
		{"Leeds", 53.8008, -1.5491},
	}},
	{Country: "Australia", Cities: []City{
		{"Sydney", -33.8688, 151.2093},
		{"Melbourne", -37.8136, 144.9631},
		{"Brisbane", -27.4698, 153.0251},
		{"Perth", -31.9505, 115.8605},
		{"Adelaide", -34.9285, 138.6007},
	}},
	{Country: "Canada", Cities: []City{
		{"Toronto", 43.6532, -79.3832},
		{"Vancouver", 49.2827, -123.1207},
		{"Montreal", 45.5017, -73.5673},
		{"Calgary", 51.0447, -114.0719},
		{"Ottawa", 45.4215, -75.6997},
	}},
}

var cityIndex = func() map[string]City {
	m := make(map[string]City)
	for _, cc := range Locations {
		for _, c := range cc.Cities {
			m[strings.ToLower(c.Name)] = c
		}
	}
	return m
}()

// Coordinates looks city up case-insensitively. Unknown cities sit at 0,0.
func Coordinates(city string) (lat, lon float64) {
	c, ok := cityIndex[strings.ToLower(strings.TrimSpace(city))]
	if !ok {
		return 0, 0
	}
	return c.Latitude, c.Longitude
}

// AllCities lists every city name in table order.
func AllCities() []string {
	var out []string
	for _, cc := range Locations {
		for _, c := range cc.Cities {
			out = append(out, c.Name)
		}
	}
	return out
}

// AllCountries lists every country in table order.
func AllCountries() []string {
	out := make([]string, 0, len(Locations))
	for _, cc := range Locations {
		out = append(out, cc.Country)
	}
	return out
}
