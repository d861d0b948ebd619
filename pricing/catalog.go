// Package pricing holds static machine-type price catalogs used when a
// provider exposes no billing API. Figures are approximate on-demand
// monthly USD (hourly * 730) for the provider's default region; downstream
// consumers must treat them as estimates, never billing-grade truth.
package pricing

import "github.com/veldt-io/cirrus/types"

// defaultMonthlyUSD is the fallback when an instance type is not in a catalog.
const defaultMonthlyUSD = 50.0

var awsCatalog = map[string]float64{
	"t2.micro": 8.47, "t2.small": 16.79, "t2.medium": 33.58,
	"t2.large": 67.16, "t2.xlarge": 134.32, "t2.2xlarge": 268.64,

	"t3.micro": 7.52, "t3.small": 15.04, "t3.medium": 30.08,
	"t3.large": 60.16, "t3.xlarge": 120.32, "t3.2xlarge": 240.64,

	"m5.large": 70.08, "m5.xlarge": 140.16, "m5.2xlarge": 280.32,
	"m5.4xlarge": 560.64, "m5.8xlarge": 1121.28, "m5.12xlarge": 1681.92,
	"m5.16xlarge": 2242.56, "m5.24xlarge": 3363.84,

	"c5.large": 62.05, "c5.xlarge": 124.10, "c5.2xlarge": 248.20,
	"c5.4xlarge": 496.40, "c5.9xlarge": 1116.90, "c5.12xlarge": 1489.20,
	"c5.18xlarge": 2233.80, "c5.24xlarge": 2978.40,

	"r5.large": 91.25, "r5.xlarge": 182.50, "r5.2xlarge": 365.00,
	"r5.4xlarge": 730.00, "r5.8xlarge": 1460.00, "r5.12xlarge": 2190.00,
	"r5.16xlarge": 2920.00, "r5.24xlarge": 4380.00,
}

var gcpCatalog = map[string]float64{
	"e2-micro": 6.13, "e2-small": 12.26, "e2-medium": 24.52,
	"e2-standard-2": 49.04, "e2-standard-4": 98.08, "e2-standard-8": 196.16,
	"e2-standard-16": 392.32,

	"n1-standard-1": 24.27, "n1-standard-2": 48.55, "n1-standard-4": 97.09,
	"n1-standard-8": 194.18, "n1-standard-16": 388.36,

	"n2-standard-2": 56.72, "n2-standard-4": 113.45, "n2-standard-8": 226.89,
	"n2-standard-16": 453.79,

	"c2-standard-4": 121.81, "c2-standard-8": 243.62, "c2-standard-16": 487.25,
}

var azureCatalog = map[string]float64{
	"Standard_B1s": 7.59, "Standard_B1ms": 15.18, "Standard_B2s": 30.37,
	"Standard_B2ms": 60.74, "Standard_B4ms": 121.47,

	"Standard_D2s_v3": 70.08, "Standard_D4s_v3": 140.16,
	"Standard_D8s_v3": 280.32, "Standard_D16s_v3": 560.64,

	"Standard_E2s_v3": 91.98, "Standard_E4s_v3": 183.96,
	"Standard_E8s_v3": 367.92,

	"Standard_F2s_v2": 61.76, "Standard_F4s_v2": 123.52,
	"Standard_F8s_v2": 247.03,
}

// OpenStack has no universal pricing; flavors follow a nominal per-vCPU
// schedule keyed on the common devstack flavor names.
var openstackCatalog = map[string]float64{
	"m1.tiny": 5.00, "m1.small": 15.00, "m1.medium": 30.00,
	"m1.large": 60.00, "m1.xlarge": 120.00,
}

var catalogs = map[types.ProviderType]map[string]float64{
	types.ProviderAWS:       awsCatalog,
	types.ProviderGCP:       gcpCatalog,
	types.ProviderAzure:     azureCatalog,
	types.ProviderOpenStack: openstackCatalog,
}

// Estimate returns the approximate monthly USD cost for an instance type.
// known is false when the type was absent and the default was used.
func Estimate(provider types.ProviderType, instanceType string) (monthlyUSD float64, known bool) {
	catalog, ok := catalogs[provider]
	if !ok {
		return defaultMonthlyUSD, false
	}
	if price, ok := catalog[instanceType]; ok {
		return price, true
	}
	return defaultMonthlyUSD, false
}
