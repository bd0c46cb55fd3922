package config

// mergeMaps merges override into base in place. Nested maps merge key by key;
// any other value (lists included) replaces the base value.
func mergeMaps(base, override map[string]interface{}) map[string]interface{} {
	if base == nil {
		base = make(map[string]interface{}, len(override))
	}
	for key, value := range override {
		if overrideMap, ok := value.(map[string]interface{}); ok {
			if baseMap, ok := base[key].(map[string]interface{}); ok {
				base[key] = mergeMaps(baseMap, overrideMap)
				continue
			}
			base[key] = mergeMaps(nil, overrideMap)
			continue
		}
		base[key] = value
	}
	return base
}
