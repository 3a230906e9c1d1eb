package catalog

import "github.com/shopspring/decimal"

const (
	CategoryLighting = "iluminacao"
	CategoryPower    = "energia"
	CategoryControl  = "controle"
	CategorySecurity = "seguranca"
	CategoryHub      = "central"
)

var categoryTitles = map[string]string{
	CategoryLighting: "Iluminação",
	CategoryPower:    "Energia",
	CategoryControl:  "Controle",
	CategorySecurity: "Segurança",
	CategoryHub:      "Central",
}

// CategoryTitle returns the display title, falling back to the raw key.
func CategoryTitle(category string) string {
	if t, ok := categoryTitles[category]; ok {
		return t
	}
	return category
}

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func Default() *Catalog {
	return MustNew([]Entry{
		{SKU: "lamp_smart", Label: "Lâmpada inteligente Wi-Fi", Category: CategoryLighting, UnitPrice: price("180.00")},
		{SKU: "switch_smart", Label: "Interruptor inteligente", Category: CategoryLighting, UnitPrice: price("250.00")},
		{SKU: "plug_smart", Label: "Tomada inteligente", Category: CategoryPower, UnitPrice: price("150.00")},
		{SKU: "ir_universal", Label: "Controle universal IR", Category: CategoryControl, UnitPrice: price("220.00")},
		{SKU: "sensor_motion", Label: "Sensor de presença", Category: CategorySecurity, UnitPrice: price("190.00")},
		{SKU: "sensor_door", Label: "Sensor de porta/janela", Category: CategorySecurity, UnitPrice: price("120.00")},
		{SKU: "camera_wifi", Label: "Câmera Wi-Fi", Category: CategorySecurity, UnitPrice: price("350.00")},
		{SKU: "hub_zigbee", Label: "Central Zigbee", Category: CategoryHub, UnitPrice: price("480.00")},
	})
}
