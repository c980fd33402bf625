package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/latticeforge/meshplanner/model"
	"github.com/latticeforge/meshplanner/plannererr"
	"gopkg.in/yaml.v3"
)

// enumFields maps a lower-cased YAML key to the parser that accepts both
// its name and its integer form (spec.md §6, "enum values accepted by
// name or by integer"). yaml.v3 has no way to bind a quoted string like
// "DN" onto a plain int field on its own, so coerceEnumScalars rewrites
// each matching scalar node to its integer form before node.Decode runs.
var enumFields = map[string]func(any) (int, error){
	"device_type": func(v any) (int, error) {
		dt, err := ParseDeviceType(v)
		return int(dt), err
	},
	"redundancy_level": func(v any) (int, error) {
		rl, err := model.ParseRedundancyLevel(v)
		return int(rl), err
	},
	"topology_routing": func(v any) (int, error) {
		rm, err := model.ParseRoutingMode(v)
		return int(rm), err
	},
	"logger_level": func(v any) (int, error) {
		ll, err := ParseLoggerLevel(v)
		return int(ll), err
	},
}

// Load reads a YAML configuration file from path, case-folds every
// mapping key in the document (spec.md §6: "case-insensitive key
// matching; unknown keys ignored"), decodes it into a Root, and
// validates it.
func Load(path string) (Root, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Root{}, plannererr.IO(plannererr.CodeNotFound, path, "read config file", err)
	}

	var node yaml.Node
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return Root{}, plannererr.IO(plannererr.CodeParseFailure, path, "parse config yaml", err)
	}
	lowercaseKeys(&node)
	if err := coerceEnumScalars(&node); err != nil {
		return Root{}, err
	}

	var root Root
	root.Optimizer = DefaultOptimizerParams()
	root.System = DefaultSystemParams()
	if err := node.Decode(&root); err != nil {
		return Root{}, plannererr.IO(plannererr.CodeParseFailure, path, "decode config yaml", err)
	}

	if err := root.Validate(); err != nil {
		return Root{}, err
	}
	return root, nil
}

// lowercaseKeys walks a YAML document tree and lower-cases every mapping
// key in place, implementing the case-insensitive binding the original
// implementation's casefold()-based ConfigParser.from_dict performed.
func lowercaseKeys(n *yaml.Node) {
	switch n.Kind {
	case yaml.DocumentNode:
		for _, c := range n.Content {
			lowercaseKeys(c)
		}
	case yaml.MappingNode:
		for i := 0; i < len(n.Content); i += 2 {
			key := n.Content[i]
			key.Value = strings.ToLower(key.Value)
			lowercaseKeys(n.Content[i+1])
		}
	case yaml.SequenceNode:
		for _, c := range n.Content {
			lowercaseKeys(c)
		}
	}
}

// coerceEnumScalars walks a YAML document tree (keys already lower-cased)
// and rewrites any scalar value under a key in enumFields to its integer
// form, so that node.Decode can bind it onto the plain-int enum fields
// spec.md §6 describes. Keys outside enumFields, and values already given
// as an integer, pass through untouched.
func coerceEnumScalars(n *yaml.Node) error {
	switch n.Kind {
	case yaml.DocumentNode:
		for _, c := range n.Content {
			if err := coerceEnumScalars(c); err != nil {
				return err
			}
		}
	case yaml.MappingNode:
		for i := 0; i < len(n.Content); i += 2 {
			key, val := n.Content[i], n.Content[i+1]
			if parse, ok := enumFields[key.Value]; ok && val.Kind == yaml.ScalarNode {
				if err := coerceEnumScalar(val, parse); err != nil {
					return err
				}
				continue
			}
			if err := coerceEnumScalars(val); err != nil {
				return err
			}
		}
	case yaml.SequenceNode:
		for _, c := range n.Content {
			if err := coerceEnumScalars(c); err != nil {
				return err
			}
		}
	}
	return nil
}

func coerceEnumScalar(val *yaml.Node, parse func(any) (int, error)) error {
	var in any
	if n, err := strconv.Atoi(val.Value); err == nil && val.Tag != "!!str" {
		in = n
	} else {
		in = val.Value
	}
	resolved, err := parse(in)
	if err != nil {
		return err
	}
	val.Value = strconv.Itoa(resolved)
	val.Tag = "!!int"
	return nil
}
