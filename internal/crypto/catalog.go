package crypto

// sensitiveFields lists, per integration or database type, the keys inside a
// config object that are encrypted at rest. Order is stable.
var sensitiveFields = map[string][]string{
	// e-commerce platforms
	"shopify":     {"accessToken", "apiKey", "apiSecret", "webhookSecret"},
	"woocommerce": {"consumerKey", "consumerSecret"},
	"bigcommerce": {"accessToken", "clientSecret"},
	"magento":     {"accessToken", "consumerSecret", "accessTokenSecret"},
	"squarespace": {"apiKey", "accessToken"},

	// storage providers
	"aws_s3":               {"accessKeyId", "secretAccessKey"},
	"google_cloud_storage": {"serviceAccountKey", "privateKey"},
	"cloudinary":           {"apiKey", "apiSecret"},
	"azure_blob":           {"accountKey", "sasToken", "connectionString"},

	// marketplaces
	"amazon":  {"clientSecret", "refreshToken", "accessToken"},
	"ebay":    {"clientSecret", "refreshToken", "accessToken"},
	"etsy":    {"apiKey", "sharedSecret", "refreshToken", "accessToken"},
	"walmart": {"clientSecret", "accessToken"},

	// database providers
	"mongodb":    {"url", "service_key", "password"},
	"supabase":   {"serviceKey", "anonKey"},
	"postgresql": {"password", "url"},
	"mysql":      {"password", "url"},
}

// SensitiveFields returns the sensitive keys for integrationType. Unknown types
// have no sensitive fields.
func SensitiveFields(integrationType string) []string {
	fields := sensitiveFields[integrationType]
	out := make([]string, len(fields))
	copy(out, fields)
	return out
}

// IntegrationTypes returns every type the catalog knows about
func IntegrationTypes() []string {
	types := make([]string, 0, len(sensitiveFields))
	for t := range sensitiveFields {
		types = append(types, t)
	}
	return types
}
