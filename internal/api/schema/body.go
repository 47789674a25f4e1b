package schema

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"reflect"
	"strings"
)

// UnmarshalBody parses and decodes a JSON request body and performs validations on it.
// An empty request body is treated as an empty JSON object so that missing-parameter
// errors are reported instead of JSON errors.
//
// String fields are trimmed unless tagged with trim:"false" and, when tagged with
// required:"true", must be non-empty after trimming.
func UnmarshalBody[T any](request *http.Request) (*T, *Error, error) {
	body, err := io.ReadAll(request.Body)
	if err != nil {
		return nil, nil, err
	}

	target := new(T)
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, target); err != nil {
			return nil, ErrInvalidJSON, nil
		}
	}

	if validationErr := validateStruct(target); validationErr != nil {
		return nil, validationErr, nil
	}
	return target, nil, nil
}

func validateStruct(val any) *Error {
	ref := reflect.ValueOf(val).Elem()
	typ := ref.Type()

	for i := 0; i < typ.NumField(); i++ {
		fieldDef := typ.Field(i)
		field := ref.Field(i)
		if field.Kind() != reflect.String {
			continue
		}

		if !strings.EqualFold(fieldDef.Tag.Get("trim"), "false") {
			field.SetString(strings.TrimSpace(field.String()))
		}
		if strings.EqualFold(fieldDef.Tag.Get("required"), "true") && field.String() == "" {
			return ErrMissingParameter(getFieldName(fieldDef))
		}
	}

	return nil
}

func getFieldName(def reflect.StructField) string {
	jsonVal, ok := def.Tag.Lookup("json")
	if !ok || jsonVal == "-" {
		return def.Name
	}
	name, _, _ := strings.Cut(jsonVal, ",")
	return name
}
