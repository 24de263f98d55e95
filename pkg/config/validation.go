package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/nimburion/docstore/pkg/store"
)

// secretFields are masked by String whatever struct they appear in.
var secretFields = map[string]struct{}{
	"password":              {},
	"api_key":               {},
	"secret_access_key":     {},
	"session_token":         {},
	"aws_secret_access_key": {},
	"aws_session_token":     {},
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	return (&ViperLoader{}).Validate(c)
}

// String returns the full configuration as a formatted string with
// credentials masked, including those embedded in connection URLs.
func (c *Config) String() string {
	return formatStruct(reflect.ValueOf(c).Elem(), "")
}

func formatStruct(v reflect.Value, prefix string) string {
	var sb strings.Builder
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		value := v.Field(i)

		if !value.CanInterface() {
			continue
		}

		fieldName := field.Name
		if tag, _, _ := strings.Cut(field.Tag.Get("mapstructure"), ","); tag != "" && tag != "-" {
			fieldName = tag
		} else if tag == "" && field.Anonymous {
			// squashed embedded settings print at the parent level
			sb.WriteString(formatStruct(value, prefix))
			continue
		}

		for value.Kind() == reflect.Pointer {
			if value.IsNil() {
				break
			}
			value = value.Elem()
		}

		switch value.Kind() {
		case reflect.Pointer:
			// nil pointers are unselected or unset sections
			continue
		case reflect.Struct:
			sb.WriteString(fmt.Sprintf("%s%s:\n", prefix, fieldName))
			sb.WriteString(formatStruct(value, prefix+"  "))
		case reflect.Slice:
			if value.Len() == 0 {
				sb.WriteString(fmt.Sprintf("%s%s: []\n", prefix, fieldName))
			} else {
				sb.WriteString(fmt.Sprintf("%s%s:\n", prefix, fieldName))
				for j := 0; j < value.Len(); j++ {
					elem := value.Index(j)
					sb.WriteString(fmt.Sprintf("%s  - %v\n", prefix, maskValue(fieldName, elem.Interface())))
				}
			}
		default:
			sb.WriteString(fmt.Sprintf("%s%s: %v\n", prefix, fieldName, maskValue(fieldName, value.Interface())))
		}
	}

	return sb.String()
}

func maskValue(fieldName string, value any) any {
	text, ok := value.(string)
	if !ok {
		return value
	}
	if _, secret := secretFields[strings.ToLower(fieldName)]; secret && text != "" {
		return "***"
	}
	return store.RedactTarget(text)
}
