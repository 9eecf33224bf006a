package schema

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

var formats = map[string]*regexp.Regexp{
	"email": regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`),
	"url":   regexp.MustCompile(`^https?://[^\s/$.?#].[^\s]*$`),
	"uri":   regexp.MustCompile(`^https?://[^\s/$.?#].[^\s]*$`),
	"uuid":  regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`),
}

// ValidationError names the offending field by its JSON path
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("field '%s' %s", e.Field, e.Message)
}

// Validate checks a struct against its schema tags, descending into nested
// structs and slices of structs.
func Validate(v interface{}) error {
	val := reflect.ValueOf(v)
	for val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return fmt.Errorf("expected struct, got nil")
		}
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return fmt.Errorf("expected struct, got %s", val.Kind())
	}
	return validateStruct(val, "")
}

func validateStruct(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}
		path := fieldName(field, jsonTag)
		if prefix != "" {
			path = prefix + "." + path
		}
		if err := validateField(val.Field(i), field.Tag.Get("schema"), path); err != nil {
			return err
		}
	}
	return nil
}

func validateField(value reflect.Value, tag, path string) error {
	zero := isZero(value)
	if zero {
		if hasOption(tag, "required") {
			return &ValidationError{Field: path, Message: "is required"}
		}
		return nil
	}

	for _, part := range splitTag(tag) {
		key, arg, _ := strings.Cut(part, ":")
		var err error
		switch key {
		case "enum":
			err = checkEnum(value, arg, path)
		case "min":
			err = checkBound(value, arg, path, true)
		case "max":
			err = checkBound(value, arg, path, false)
		case "pattern":
			err = checkPattern(value, arg, path)
		case "format":
			err = checkFormat(value, arg, path)
		}
		if err != nil {
			return err
		}
	}

	return descend(value, path)
}

func descend(value reflect.Value, path string) error {
	for value.Kind() == reflect.Ptr || value.Kind() == reflect.Interface {
		if value.IsNil() {
			return nil
		}
		value = value.Elem()
	}
	switch value.Kind() {
	case reflect.Struct:
		if value.Type() == timeType {
			return nil
		}
		return validateStruct(value, path)
	case reflect.Slice, reflect.Array:
		for i := 0; i < value.Len(); i++ {
			if err := descend(value.Index(i), fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkEnum(value reflect.Value, values, path string) error {
	allowed := strings.Split(values, "|")
	current := fmt.Sprintf("%v", value.Interface())
	for _, a := range allowed {
		if current == a {
			return nil
		}
	}
	return &ValidationError{Field: path, Message: "must be one of: " + strings.Join(allowed, ", ")}
}

func checkBound(value reflect.Value, arg, path string, lower bool) error {
	word := "most"
	if lower {
		word = "least"
	}
	outside := func(cmp int) bool {
		if lower {
			return cmp < 0
		}
		return cmp > 0
	}

	switch value.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid bound for field '%s': %s", path, arg)
		}
		if outside(compare(float64(value.Int()), float64(n))) {
			return &ValidationError{Field: path, Message: fmt.Sprintf("must be at %s %d", word, n)}
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(arg, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid bound for field '%s': %s", path, arg)
		}
		if outside(compare(float64(value.Uint()), float64(n))) {
			return &ValidationError{Field: path, Message: fmt.Sprintf("must be at %s %d", word, n)}
		}
	case reflect.Float32, reflect.Float64:
		n, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return fmt.Errorf("invalid bound for field '%s': %s", path, arg)
		}
		if outside(compare(value.Float(), n)) {
			return &ValidationError{Field: path, Message: fmt.Sprintf("must be at %s %g", word, n)}
		}
	case reflect.String, reflect.Slice, reflect.Array, reflect.Map:
		n, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("invalid length bound for field '%s': %s", path, arg)
		}
		length := value.Len()
		if value.Kind() == reflect.String {
			length = len([]rune(value.String()))
		}
		if outside(compare(float64(length), float64(n))) {
			unit := "items"
			if value.Kind() == reflect.String {
				unit = "characters"
			}
			return &ValidationError{Field: path, Message: fmt.Sprintf("must be at %s %d %s", word, n, unit)}
		}
	}
	return nil
}

func compare(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func checkPattern(value reflect.Value, pattern, path string) error {
	if value.Kind() != reflect.String {
		return nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid pattern for field '%s': %s", path, pattern)
	}
	if !re.MatchString(value.String()) {
		return &ValidationError{Field: path, Message: "does not match pattern: " + pattern}
	}
	return nil
}

func checkFormat(value reflect.Value, format, path string) error {
	if value.Kind() != reflect.String {
		return nil
	}
	re, ok := formats[format]
	if !ok {
		return nil
	}
	if !re.MatchString(value.String()) {
		return &ValidationError{Field: path, Message: "must be a valid " + format}
	}
	return nil
}

func isZero(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Interface, reflect.Ptr:
		return v.IsNil()
	case reflect.Struct:
		return false
	}
	return v.IsZero()
}
