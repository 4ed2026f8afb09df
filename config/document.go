package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"go.yaml.in/yaml/v3"
)

// fieldTags lists the YAML tags each recognised key may carry.
var fieldTags = map[string][]string{
	keyBackendURL:  {"!!str"},
	keySecretToken: {"!!str"},
	keyPort:        {"!!int"},
	keyExtraValues: {"!!str", "!!null"},
}

// checkDocument rejects documents viper would otherwise accept: keys differing
// only in case, duplicate keys and scalars of the wrong type.
func checkDocument(raw []byte) error {
	var root yaml.Node
	if err := yaml.NewDecoder(bytes.NewReader(raw)).Decode(&root); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	doc := &root
	if doc.Kind == yaml.DocumentNode {
		if len(doc.Content) == 0 {
			return nil
		}
		doc = doc.Content[0]
	}
	if doc.Kind == yaml.ScalarNode && doc.ShortTag() == "!!null" {
		return nil
	}
	if doc.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: document must be a mapping", doc.Line)
	}

	seen := make(map[string]bool, len(fieldTags))
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key, value := doc.Content[i], doc.Content[i+1]

		allowed, known := fieldTags[key.Value]
		if key.Kind != yaml.ScalarNode || !known {
			return fmt.Errorf("line %d: unknown field %q", key.Line, key.Value)
		}
		if seen[key.Value] {
			return fmt.Errorf("line %d: duplicate field %q", key.Line, key.Value)
		}
		seen[key.Value] = true

		if value.Kind != yaml.ScalarNode || !hasTag(value.ShortTag(), allowed) {
			return fmt.Errorf("line %d: field %q: unexpected value of type %s",
				value.Line, key.Value, value.ShortTag())
		}
	}

	return nil
}

func hasTag(tag string, allowed []string) bool {
	for _, a := range allowed {
		if tag == a {
			return true
		}
	}
	return false
}
