package lead

import (
	"fmt"
	"sort"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

const formSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["urgency", "vehicleType", "paymentType", "tradeIn", "fullName", "phone", "email", "dateOfBirth", "licenseClass", "cosigner"],
  "properties": {
    "urgency":         {"type": "string", "enum": ["right-away", "few-weeks", "few-months"]},
    "vehicleType":     {"type": "string", "enum": ["sedan", "suv", "hatchback", "coupe-convertible", "truck", "minivan"]},
    "paymentType":     {"type": "string", "enum": ["cash", "finance"]},
    "financeBudget":   {"type": "string", "enum": ["400-or-less", "400-500", "500-600", "600-plus"]},
    "cashBudget":      {"type": "string", "enum": ["15k-or-less", "20-30k", "30-45k", "50k-plus"]},
    "creditRating":    {"type": "string", "enum": ["poor", "fair", "good", "excellent"]},
    "tradeIn":         {"type": "string", "enum": ["yes", "no", "unsure"]},
    "tradeInYear":     {"type": "string", "pattern": "^(19|20)[0-9]{2}$"},
    "tradeInMake":     {"type": "string", "minLength": 1, "maxLength": 60},
    "tradeInModel":    {"type": "string", "minLength": 1, "maxLength": 60},
    "fullName":        {"type": "string", "minLength": 2, "maxLength": 100},
    "phone":           {"type": "string", "pattern": "^[+]?[0-9 ().-]{10,20}$"},
    "email":           {"type": "string", "format": "email", "maxLength": 254},
    "dateOfBirth":     {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"},
    "bestTimeToReach": {"type": "string", "enum": ["morning", "noon", "afternoon", "evening"]},
    "licenseClass":    {"type": "string", "enum": ["g1", "g2", "g-or-above"]},
    "cosigner":        {"type": "string", "enum": ["yes", "no"]},
    "cosignerFullName": {"type": "string", "minLength": 2, "maxLength": 100},
    "cosignerPhone":   {"type": "string", "pattern": "^[+]?[0-9 ().-]{10,20}$"},
    "cosignerEmail":   {"type": "string", "format": "email", "maxLength": 254}
  },
  "allOf": [
    {
      "if":   {"properties": {"paymentType": {"const": "finance"}}, "required": ["paymentType"]},
      "then": {"required": ["financeBudget", "creditRating"]}
    },
    {
      "if":   {"properties": {"paymentType": {"const": "cash"}}, "required": ["paymentType"]},
      "then": {"required": ["cashBudget"]}
    },
    {
      "if":   {"properties": {"tradeIn": {"enum": ["yes", "unsure"]}}, "required": ["tradeIn"]},
      "then": {"required": ["tradeInYear", "tradeInMake", "tradeInModel"]}
    },
    {
      "if":   {"properties": {"cosigner": {"const": "yes"}}, "required": ["cosigner"]},
      "then": {"required": ["cosignerFullName", "cosignerPhone", "cosignerEmail"]}
    }
  ]
}`

var formSchema = mustCompile(formSchemaJSON)

func mustCompile(src string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("lead: compile form schema: %v", err))
	}
	return schema
}

// combinator results only restate the nested errors that caused them
var skippedErrorTypes = map[string]bool{
	"condition_then": true,
	"condition_else": true,
	"number_all_of":  true,
	"number_any_of":  true,
	"number_one_of":  true,
}

// ValidateForm checks a submission. The returned error is a *ValidationError
// listing every offending field, sorted by field name.
func ValidateForm(form FormData, now time.Time) error {
	result, err := formSchema.Validate(gojsonschema.NewGoLoader(form))
	if err != nil {
		return fmt.Errorf("validate form: %w", err)
	}

	verr := &ValidationError{}
	seen := map[string]bool{}
	for _, re := range result.Errors() {
		if skippedErrorTypes[re.Type()] {
			continue
		}
		field := re.Field()
		if re.Type() == "required" {
			if prop, ok := re.Details()["property"].(string); ok {
				field = prop
			}
		}
		key := field + "|" + re.Type()
		if seen[key] {
			continue
		}
		seen[key] = true
		verr.add(field, re.Description())
	}

	if form.DateOfBirth != "" && !verr.Has("dateOfBirth") {
		checkBirthDate(verr, form.DateOfBirth, now)
	}

	if len(verr.Fields) == 0 {
		return nil
	}
	sort.SliceStable(verr.Fields, func(i, j int) bool { return verr.Fields[i].Field < verr.Fields[j].Field })
	return verr
}

func checkBirthDate(verr *ValidationError, value string, now time.Time) {
	dob, err := time.Parse("2006-01-02", value)
	if err != nil {
		verr.add("dateOfBirth", "must be a valid calendar date")
		return
	}
	if !dob.Before(now) {
		verr.add("dateOfBirth", "must be in the past")
		return
	}
	if dob.Year() < 1900 {
		verr.add("dateOfBirth", "must be after 1900")
	}
}
