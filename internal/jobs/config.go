package jobs

import (
	"fmt"
	"time"
)

// configString извлекает строку из config.
func configString(config map[string]any, key, defaultVal string) string {
	if v, ok := config[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return defaultVal
}

// configStringMap извлекает map[string]string (заголовки).
func configStringMap(config map[string]any, key string) map[string]string {
	result := make(map[string]string)
	switch m := config[key].(type) {
	case map[string]string:
		for k, v := range m {
			result[k] = v
		}
	case map[string]any:
		for k, v := range m {
			if s, ok := v.(string); ok {
				result[k] = s
			}
		}
	}
	return result
}

// configDuration извлекает длительность: строка "1m30s" или число секунд.
func configDuration(config map[string]any, key string, defaultVal time.Duration) (time.Duration, error) {
	v, ok := config[key]
	if !ok || v == nil {
		return defaultVal, nil
	}
	return parseDurationValue(v)
}

func parseDurationValue(v any) (time.Duration, error) {
	switch x := v.(type) {
	case string:
		d, err := time.ParseDuration(x)
		if err != nil {
			return 0, fmt.Errorf("parse duration %q: %w", x, err)
		}
		return d, nil
	case int:
		return time.Duration(x) * time.Second, nil
	case int64:
		return time.Duration(x) * time.Second, nil
	case float64:
		return time.Duration(x * float64(time.Second)), nil
	case time.Duration:
		return x, nil
	default:
		return 0, fmt.Errorf("unsupported duration value %v (%T)", v, v)
	}
}
