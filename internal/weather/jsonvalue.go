package weather

import "encoding/json"

// The accessors below read a document decoded with json.Decoder.UseNumber
// into interface{} values. Each returns def when the value is missing or of
// the wrong JSON type; none of them fail.

func objectField(obj map[string]interface{}, key string) map[string]interface{} {
	if obj == nil {
		return nil
	}
	m, _ := obj[key].(map[string]interface{})
	return m
}

func arrayField(obj map[string]interface{}, key string) []interface{} {
	if obj == nil {
		return nil
	}
	a, _ := obj[key].([]interface{})
	return a
}

func floatValue(v interface{}, def float64) float64 {
	n, ok := v.(json.Number)
	if !ok {
		return def
	}
	f, err := n.Float64()
	if err != nil {
		return def
	}
	return f
}

// intValue accepts integral numbers only; 12.5 is a float and yields def.
func intValue(v interface{}, def int) int {
	n, ok := v.(json.Number)
	if !ok {
		return def
	}
	i, err := n.Int64()
	if err != nil {
		return def
	}
	return int(i)
}

func stringValue(v interface{}, def string) string {
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

func floatField(obj map[string]interface{}, key string, def float64) float64 {
	if obj == nil {
		return def
	}
	return floatValue(obj[key], def)
}

func intField(obj map[string]interface{}, key string, def int) int {
	if obj == nil {
		return def
	}
	return intValue(obj[key], def)
}

func stringField(obj map[string]interface{}, key string, def string) string {
	if obj == nil {
		return def
	}
	return stringValue(obj[key], def)
}

// element returns arr[i], or nil when i is past the end of arr.
func element(arr []interface{}, i int) interface{} {
	if i < 0 || i >= len(arr) {
		return nil
	}
	return arr[i]
}
