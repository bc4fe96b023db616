package validator

var tagMap = map[string]string{
	"required":         "required",
	"required_without": "required",
	"required_with":    "required",
	"url":              "invalid_url",
	"hostname":         "invalid_hostname",
	"numeric":          "only_numbers_allowed",
	"oneof":            "invalid_choice",
	"min":              "too_short",
	"max":              "too_long",
	"gt":               "too_small",
	"gte":              "too_small_or_equal",
	"lt":               "too_large",
	"lte":              "too_large_or_equal",
	"ltefield":         "exceeds_related_field",
	"gtefield":         "below_related_field",
}

func mapTagToCode(tag string) string {
	if code, ok := tagMap[tag]; ok {
		return code
	}
	return "invalid"
}
