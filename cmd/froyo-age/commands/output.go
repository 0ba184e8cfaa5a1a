package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printGlobals writes one "name = value" line per global, sorted by name,
// with values rendered as JSON.
func printGlobals(w io.Writer, globals map[string]interface{}) error {
	names := make([]string, 0, len(globals))
	for name := range globals {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value, err := json.Marshal(globals[name])
		if err != nil {
			return fmt.Errorf("rendering %s: %w", name, err)
		}
		if _, err := fmt.Fprintf(w, "%s = %s\n", name, value); err != nil {
			return err
		}
	}
	return nil
}
